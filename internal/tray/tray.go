package tray

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"sync"

	"github.com/getlantern/systray"
	"github.com/rs/zerolog"

	"github.com/petems/voicegate/internal/app"
	"github.com/petems/voicegate/internal/config"
	"github.com/petems/voicegate/internal/logging"
)

type UI struct {
	app     *app.App
	cfg     *config.Config
	version string
	commit  string
	log     zerolog.Logger
	ctx     context.Context

	mu        sync.Mutex
	ready     bool
	status    string
	countdown int
	message   string

	// Menu items
	mStatus   *systray.MenuItem
	mRegister *systray.MenuItem
	mLogin    *systray.MenuItem
	mStop     *systray.MenuItem
	mDevices  *systray.MenuItem
}

// Status update methods for the app to call
func (u *UI) SetIdle() {
	u.updateStatus("idle")
}

func (u *UI) SetRecording() {
	u.updateStatus("recording")
}

func (u *UI) SetProcessing() {
	u.updateStatus("processing")
}

func (u *UI) SetError() {
	u.updateStatus("error")
}

func (u *UI) SetCountdown(remaining int) {
	u.mu.Lock()
	u.countdown = remaining
	u.mu.Unlock()
	u.render()
}

// ShowMessage puts msg in the first menu row and the tooltip.
func (u *UI) ShowMessage(msg string) {
	u.log.Info().Str("message", msg).Msg("Status")
	u.mu.Lock()
	u.message = msg
	u.mu.Unlock()
	u.render()
}

func New(application *app.App, cfg *config.Config, version, commit string, log zerolog.Logger) *UI {
	return &UI{
		app:       application,
		cfg:       cfg,
		version:   version,
		commit:    commit,
		log:       log,
		ctx:       context.Background(),
		status:    "idle",
		countdown: cfg.Audio.CountdownSeconds,
	}
}

// SetApp sets the app reference (for circular dependency resolution)
func (u *UI) SetApp(application *app.App) {
	u.app = application
}

func (u *UI) Run(ctx context.Context) error {
	u.ctx = ctx
	systray.Run(u.onReady, u.onExit)
	return nil
}

func (u *UI) onReady() {
	systray.SetTooltip("Voice registration and login")

	u.mStatus = systray.AddMenuItem("Ready", "")
	u.mStatus.Disable()
	systray.AddSeparator()

	u.mRegister = systray.AddMenuItem("Register Voice", "Record your passphrase and register it")
	u.mLogin = systray.AddMenuItem("Login", "Record your passphrase and log in")
	u.mStop = systray.AddMenuItem("Stop Recording", "Stop early and submit")
	systray.AddSeparator()

	u.mDevices = systray.AddMenuItem("Microphone", "Select audio device")
	u.buildDeviceMenu()

	systray.AddSeparator()
	mLogs := systray.AddMenuItem("Open Logs", "View application logs")
	mAbout := systray.AddMenuItem("About", "About voicegate")
	mQuit := systray.AddMenuItem("Quit", "Exit application")

	u.mu.Lock()
	u.ready = true
	u.mu.Unlock()
	u.render()

	// Event loop
	go u.handleEvents(mLogs, mAbout, mQuit)
}

func (u *UI) handleEvents(mLogs, mAbout, mQuit *systray.MenuItem) {
	for {
		select {
		case <-u.mRegister.ClickedCh:
			go u.app.Toggle(u.ctx, app.Register)
		case <-u.mLogin.ClickedCh:
			go u.app.Toggle(u.ctx, app.Login)
		case <-u.mStop.ClickedCh:
			go u.app.StopCapture()
		case <-mLogs.ClickedCh:
			u.openLogs()
		case <-mAbout.ClickedCh:
			u.showAbout()
		case <-mQuit.ClickedCh:
			systray.Quit()
			return
		}
	}
}

func (u *UI) buildDeviceMenu() {
	devices, err := u.app.ListDevices()
	if err != nil {
		u.log.Error().Err(err).Msg("Failed to list audio devices")
		return
	}

	deviceItems := make(map[string]*systray.MenuItem)

	for _, dev := range devices {
		item := u.mDevices.AddSubMenuItem(dev.Name, "")
		if dev.ID == u.cfg.Audio.DeviceID || (u.cfg.Audio.DeviceID == "" && dev.Default) {
			item.Check()
		}
		deviceItems[dev.ID] = item

		go func(deviceID, deviceName string, menuItem *systray.MenuItem) {
			for {
				<-menuItem.ClickedCh
				if err := u.app.SetDevice(deviceID); err != nil {
					u.log.Warn().Err(err).Str("device", deviceName).Msg("Device not changed")
					u.ShowMessage("Stop the recording before switching microphones.")
					continue
				}
				for id, itm := range deviceItems {
					if id != deviceID {
						itm.Uncheck()
					}
				}
				menuItem.Check()
				u.log.Info().Str("device", deviceName).Msg("Changed audio device")
			}
		}(dev.ID, dev.Name, item)
	}
}

func (u *UI) openLogs() {
	path := logging.Path()
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", path)
	case "windows":
		cmd = exec.Command("cmd", "/c", "start", "", path)
	default:
		cmd = exec.Command("xdg-open", path)
	}
	if err := cmd.Start(); err != nil {
		u.log.Error().Err(err).Str("path", path).Msg("Failed to open logs")
		u.ShowMessage("Logs are at " + path)
	}
}

func (u *UI) showAbout() {
	u.ShowMessage(fmt.Sprintf("voicegate %s (%s)", u.version, u.commit))
}

func (u *UI) onExit() {
	if u.app == nil {
		return
	}
	if err := u.app.Shutdown(u.ctx); err != nil {
		u.log.Error().Err(err).Msg("Shutdown error")
	}
}

func (u *UI) updateStatus(status string) {
	u.mu.Lock()
	u.status = status
	u.mu.Unlock()
	u.render()
}

// render pushes the current status to the tray. Updates before the tray is
// ready are kept and applied in onReady.
func (u *UI) render() {
	u.mu.Lock()
	defer u.mu.Unlock()
	if !u.ready {
		return
	}

	systray.SetTitle(titleFor(u.status, u.countdown))
	if u.message != "" {
		u.mStatus.SetTitle(u.message)
		systray.SetTooltip(u.message)
	}

	switch u.status {
	case "recording":
		u.mRegister.Disable()
		u.mLogin.Disable()
		u.mStop.Enable()
	case "processing":
		u.mRegister.Disable()
		u.mLogin.Disable()
		u.mStop.Disable()
	default:
		u.mRegister.Enable()
		u.mLogin.Enable()
		u.mStop.Disable()
	}
}

// titleFor builds the tray title; the countdown only shows while recording.
func titleFor(status string, countdown int) string {
	title := fmt.Sprintf("🎤 %s", emojiForStatus(status))
	if status == "recording" {
		title += fmt.Sprintf(" %ds", countdown)
	}
	return title
}

// emojiForStatus returns the appropriate status emoji
func emojiForStatus(status string) string {
	switch status {
	case "recording":
		return "🔴" // Red - recording
	case "processing":
		return "🟡" // Yellow - encoding or talking to the server
	case "idle":
		return "🟢" // Green - ready/idle
	case "error":
		return "⚪️" // White - error
	default:
		return "🟢" // Green - default to ready
	}
}
