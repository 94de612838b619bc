package main

import (
	"context"
	"errors"
	"strings"
	"testing"

	"circle-thumb/src/singleinstance"
)

func TestNormalizeLegacyArgs(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		out  []string
	}{
		{
			name: "Normalizes long single dash flags",
			in:   []string{"circle-thumb", "-file", "/tmp/cat.png", "-env", "/tmp/.env"},
			out:  []string{"circle-thumb", "--file", "/tmp/cat.png", "--env", "/tmp/.env"},
		},
		{
			name: "Normalizes equals form",
			in:   []string{"circle-thumb", "-file=/tmp/cat.png"},
			out:  []string{"circle-thumb", "--file=/tmp/cat.png"},
		},
		{
			name: "Leaves other args unchanged",
			in:   []string{"circle-thumb", "--file", "-", "-x"},
			out:  []string{"circle-thumb", "--file", "-", "-x"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := normalizeLegacyArgs(tt.in)
			if strings.Join(got, " ") != strings.Join(tt.out, " ") {
				t.Fatalf("got %q, want %q", got, tt.out)
			}
		})
	}
}

func TestNewRootCmdParsesFlags(t *testing.T) {
	opts := &mainOptions{}
	cmd := newRootCmd(opts)
	if err := cmd.ParseFlags([]string{"--file", "/tmp/cat.png", "--env", "/tmp/.env"}); err != nil {
		t.Fatalf("ParseFlags failed: %v", err)
	}
	if opts.filePath != "/tmp/cat.png" || opts.envPath != "/tmp/.env" {
		t.Fatalf("unexpected options %+v", *opts)
	}
}

type fakeClient struct {
	delegated bool
	err       error
	got       singleinstance.Request
	called    bool
}

func (f *fakeClient) TryOpen(ctx context.Context, req singleinstance.Request) (bool, error) {
	f.called = true
	f.got = req
	return f.delegated, f.err
}

func TestDelegateOrStart_Delegated(t *testing.T) {
	client := &fakeClient{delegated: true}
	started := false
	err := delegateOrStart("/tmp/cat.png", client, func() error { started = true; return nil })
	if err != nil || started {
		t.Fatalf("err=%v started=%v", err, started)
	}
	if client.got.Path != "/tmp/cat.png" {
		t.Fatalf("forwarded path %q", client.got.Path)
	}
}

func TestDelegateOrStart_ResidentRefused(t *testing.T) {
	client := &fakeClient{delegated: true, err: errors.New("Image is too small.")}
	started := false
	err := delegateOrStart("/tmp/tiny.png", client, func() error { started = true; return nil })
	if err == nil || !strings.Contains(err.Error(), "Image is too small.") {
		t.Fatalf("expected resident error, got %v", err)
	}
	if started {
		t.Fatal("must not start a second editor")
	}
}

func TestDelegateOrStart_NoResident(t *testing.T) {
	for _, client := range []*fakeClient{{}, {err: errors.New("dial failed")}} {
		started := false
		if err := delegateOrStart("", client, func() error { started = true; return nil }); err != nil {
			t.Fatalf("unexpected error %v", err)
		}
		if !client.called || !started {
			t.Fatalf("called=%v started=%v", client.called, started)
		}
	}
}
