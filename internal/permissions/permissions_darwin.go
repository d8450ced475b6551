//go:build darwin

package permissions

/*
#cgo LDFLAGS: -framework AVFoundation
#import <AVFoundation/AVFoundation.h>

int checkMicrophonePermission() {
    AVAuthorizationStatus status = [AVCaptureDevice authorizationStatusForMediaType:AVMediaTypeAudio];
    return (int)status;
}

void requestMicrophonePermission() {
    [AVCaptureDevice requestAccessForMediaType:AVMediaTypeAudio completionHandler:^(BOOL granted) {}];
}
*/
import "C"

import "fmt"

// Status mirrors AVAuthorizationStatus.
type Status int

const (
	NotDetermined Status = 0
	Restricted    Status = 1
	Denied        Status = 2
	Authorized    Status = 3
)

func (s Status) String() string {
	switch s {
	case NotDetermined:
		return "not determined"
	case Restricted:
		return "restricted"
	case Denied:
		return "denied"
	case Authorized:
		return "authorized"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// CheckMicrophone returns the current microphone permission status
func CheckMicrophone() Status {
	return Status(C.checkMicrophonePermission())
}

// EnsureMicrophone fails unless microphone access has been granted. When the
// user has not been asked yet the system prompt is triggered; the capture
// can be retried once it is answered.
func EnsureMicrophone() error {
	switch status := CheckMicrophone(); status {
	case Authorized:
		return nil
	case NotDetermined:
		C.requestMicrophonePermission()
		return fmt.Errorf("microphone permission requested, try again after answering the prompt")
	default:
		return fmt.Errorf("microphone permission %s; enable it in System Settings → Privacy & Security → Microphone", status)
	}
}
