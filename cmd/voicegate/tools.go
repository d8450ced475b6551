package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/petems/voicegate/internal/audio"
	"github.com/petems/voicegate/internal/encode"
	"github.com/petems/voicegate/internal/wav"
)

func newValidateCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "validate <file>",
		Short: "Check that a file is 16 kHz mono 16-bit PCM WAV",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			info, err := wav.Inspect(data)
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(info)
			}
			fmt.Fprintf(out, "%s: valid, %d Hz, %d channel, %d-bit, %d samples (%s)\n",
				args[0], info.SampleRate, info.Channels, info.BitsPerSample, info.NumSamples, info.Duration)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print header values as JSON")
	return cmd
}

func newEncodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "encode <input> <output>",
		Short: "Transcode wav, ogg/opus or mp3 to 16 kHz mono 16-bit PCM WAV",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			container, err := encode.Transcode(data)
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			if err := wav.Validate(container); err != nil {
				return err
			}
			if err := os.WriteFile(args[1], container, 0644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d bytes)\n", args[1], len(container))
			return nil
		},
	}
}

func newDevicesCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List audio input devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup(flags)
			if err != nil {
				return err
			}
			mic, err := audio.New(cfg.Audio)
			if err != nil {
				log.Error().Err(err).Msg("Failed to initialize audio")
				return err
			}
			defer mic.Close()

			devices, err := mic.ListDevices()
			if err != nil {
				return err
			}
			for _, d := range devices {
				marker := " "
				if d.ID == cfg.Audio.DeviceID || (cfg.Audio.DeviceID == "" && d.Default) {
					marker = "*"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", marker, d.Name)
			}
			return nil
		},
	}
}
