package cli

import (
	"bufio"
	"bytes"
	"strings"
	"testing"
)

func TestGetSimpleText_TrimsAndPrompts(t *testing.T) {
	var out bytes.Buffer
	r := bufio.NewReader(strings.NewReader("  hello world  \n"))

	got, err := GetSimpleText(r, "Enter something", &out)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "hello world" {
		t.Fatalf("expected trimmed input, got %q", got)
	}
	if !strings.Contains(out.String(), "Enter something") {
		t.Fatalf("prompt not written: %q", out.String())
	}
}

func TestGetSimpleText_PartialLineOnEOF(t *testing.T) {
	var out bytes.Buffer
	r := bufio.NewReader(strings.NewReader("no newline"))

	got, err := GetSimpleText(r, "p", &out)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "no newline" {
		t.Fatalf("expected partial line, got %q", got)
	}
}

func TestGetPassword_UsesSeam(t *testing.T) {
	orig := readPassword
	readPassword = func(fd int) ([]byte, error) { return []byte("s3cret"), nil }
	t.Cleanup(func() { readPassword = orig })

	var out bytes.Buffer
	pw, err := GetPassword(&out)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(pw) != "s3cret" {
		t.Fatalf("expected stubbed password, got %q", pw)
	}
}

func TestGetFieldEdits(t *testing.T) {
	var out bytes.Buffer
	r := bufio.NewReader(strings.NewReader("bloodType=O+\nallergies = penicillin\nnot-a-pair\n\n"))

	edits, err := GetFieldEdits(r, &out)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(edits) != 2 {
		t.Fatalf("expected 2 edits, got %+v", edits)
	}
	if edits["bloodType"] != "O+" {
		t.Fatalf("bloodType: got %q", edits["bloodType"])
	}
	if edits["allergies"] != "penicillin" {
		t.Fatalf("allergies: got %q", edits["allergies"])
	}
	if !strings.Contains(out.String(), "skipping") {
		t.Fatalf("malformed line not reported: %q", out.String())
	}
}
