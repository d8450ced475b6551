package main

import (
	"bytes"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/petems/voicegate/internal/config"
	"github.com/petems/voicegate/internal/wav"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestValidateCommand(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.wav")
	if err := os.WriteFile(good, wav.Build(make([]int16, 16000)), 0644); err != nil {
		t.Fatal(err)
	}

	out, err := run(t, "validate", good)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !strings.Contains(out, "16000 Hz") || !strings.Contains(out, "1s") {
		t.Errorf("unexpected output %q", out)
	}

	bad := filepath.Join(dir, "bad.wav")
	b := wav.Build(make([]int16, 100))
	binary.LittleEndian.PutUint32(b[24:28], 44100)
	if err := os.WriteFile(bad, b, 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := run(t, "validate", bad); err == nil || !strings.Contains(err.Error(), "sample_rate") {
		t.Errorf("expected sample rate failure, got %v", err)
	}
}

func TestEncodeCommand(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.wav")
	out := filepath.Join(dir, "out.wav")

	// One second of 48 kHz stereo float.
	src := wav.StreamHeader(48000, 2)
	var sample [4]byte
	binary.LittleEndian.PutUint32(sample[:], math.Float32bits(0.25))
	for i := 0; i < 48000*2; i++ {
		src = append(src, sample[:]...)
	}
	if err := os.WriteFile(in, src, 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := run(t, "encode", in, out); err != nil {
		t.Fatalf("encode: %v", err)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	info, err := wav.Inspect(data)
	if err != nil {
		t.Fatalf("output invalid: %v", err)
	}
	if info.NumSamples != 16000 {
		t.Errorf("expected 16000 samples, got %d", info.NumSamples)
	}
}

func TestEncodeCommandRejectsUnknownInput(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.bin")
	if err := os.WriteFile(in, []byte("plain text"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := run(t, "encode", in, filepath.Join(dir, "out.wav")); err == nil {
		t.Fatal("expected decode error")
	}
	if _, err := os.Stat(filepath.Join(dir, "out.wav")); !os.IsNotExist(err) {
		t.Error("output written for undecodable input")
	}
}

func TestOverrideIdentity(t *testing.T) {
	id := config.IdentityConfig{FullName: "Ada Lovelace", Email: "ada@example.com", Username: "ada", DOB: "1815-12-10"}
	overrideIdentity(&id, config.IdentityConfig{Username: "countess"})

	want := config.IdentityConfig{FullName: "Ada Lovelace", Email: "ada@example.com", Username: "countess", DOB: "1815-12-10"}
	if id != want {
		t.Errorf("got %+v, want %+v", id, want)
	}
}
