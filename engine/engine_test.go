package engine

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"murmur/vad"
)

func testUtterance(t *testing.T) *vad.Utterance {
	t.Helper()
	d := vad.NewDetector(vad.Config{
		EnergyThreshold: 0.004,
		SilenceDuration: 40 * time.Millisecond,
		MinUtterance:    40 * time.Millisecond,
		FrameDuration:   20 * time.Millisecond,
	})
	samples := make([]float32, 320)
	for i := range samples {
		samples[i] = 0.2
	}
	var utt *vad.Utterance
	for i := 0; i < 5; i++ {
		utt = d.ProcessFrame(vad.NewFrame(samples, time.Now()))
	}
	silence := make([]float32, 320)
	for i := 0; i < 3 && utt == nil; i++ {
		utt = d.ProcessFrame(vad.NewFrame(silence, time.Now()))
	}
	if utt == nil {
		t.Fatal("no utterance produced")
	}
	return utt
}

func TestNewUnknownKind(t *testing.T) {
	if _, err := New(Options{Kind: "parrot"}); err == nil {
		t.Error("expected error for unknown engine kind")
	}
}

func TestNewRequiresParameters(t *testing.T) {
	if _, err := New(Options{Kind: "whisper"}); err == nil {
		t.Error("whisper without model path should fail")
	}
	if _, err := New(Options{Kind: "remote"}); err == nil {
		t.Error("remote without URL should fail")
	}
}

func TestFakeScript(t *testing.T) {
	f := NewFakeScript("one", "two")
	utt := testUtterance(t)
	for _, want := range []string{"one", "two", "two"} {
		got, err := f.Transcribe(context.Background(), utt)
		if err != nil {
			t.Fatal(err)
		}
		if got != want {
			t.Errorf("got %q, want %q", got, want)
		}
	}
	if len(f.Calls()) != 3 {
		t.Errorf("calls = %d, want 3", len(f.Calls()))
	}
}

func TestFakeError(t *testing.T) {
	wantErr := errors.New("boom")
	f := NewFake("", wantErr)
	if _, err := f.Transcribe(context.Background(), testUtterance(t)); !errors.Is(err, wantErr) {
		t.Errorf("got %v, want %v", err, wantErr)
	}
}

func TestFakeDelayHonorsContext(t *testing.T) {
	f := NewFake("late", nil)
	f.SetDelay(5 * time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	start := time.Now()
	_, err := f.Transcribe(ctx, testUtterance(t))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("got %v, want context.Canceled", err)
	}
	if time.Since(start) > time.Second {
		t.Error("transcribe did not return promptly on cancel")
	}
}

func TestRemoteTranscribe(t *testing.T) {
	var gotAuth, gotLang string
	var gotFlac bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if err := r.ParseMultipartForm(10 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		gotLang = r.FormValue("language")
		file, _, err := r.FormFile("file")
		if err != nil {
			t.Errorf("form file: %v", err)
		} else {
			head := make([]byte, 4)
			io.ReadFull(file, head)
			gotFlac = string(head) == "fLaC"
			file.Close()
		}
		json.NewEncoder(w).Encode(map[string]string{"text": "  hello there "})
	}))
	defer srv.Close()

	r := NewRemote(srv.URL, "secret", "whisper-1")
	r.SetLanguage("en")
	got, err := r.Transcribe(context.Background(), testUtterance(t))
	if err != nil {
		t.Fatal(err)
	}
	if got != "hello there" {
		t.Errorf("got %q, want trimmed %q", got, "hello there")
	}
	if gotAuth != "Bearer secret" {
		t.Errorf("auth header %q", gotAuth)
	}
	if gotLang != "en" {
		t.Errorf("language field %q, want en", gotLang)
	}
	if !gotFlac {
		t.Error("uploaded payload is not FLAC")
	}
}

func TestRemoteTranscribeAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	r := NewRemote(srv.URL, "", "")
	_, err := r.Transcribe(context.Background(), testUtterance(t))
	if err == nil || !strings.Contains(err.Error(), "503") {
		t.Errorf("got %v, want API error with status", err)
	}
}
