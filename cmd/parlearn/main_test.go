package main

import (
	"os"
	"path/filepath"
	"testing"
)

func writeASCIIFixture(t *testing.T, path string) {
	t.Helper()
	content := "1 1 1\n-1 -1 -1\n1 1 -1\n-1 -1 1\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func TestRunRejectsMissingTrainFlag(t *testing.T) {
	if code := run([]string{"--test", "x"}); code == 0 {
		t.Error("expected nonzero exit code when --train is missing")
	}
}

func TestRunRejectsBadLambda(t *testing.T) {
	dir := t.TempDir()
	trainPath := filepath.Join(dir, "train.ascii")
	writeASCIIFixture(t, trainPath)
	if code := run([]string{"--train", trainPath, "--test", trainPath, "--train-format", "ascii", "--lambda", "0"}); code == 0 {
		t.Error("expected nonzero exit code for lambda<=0")
	}
}

func TestRunRejectsUnknownLoss(t *testing.T) {
	dir := t.TempDir()
	trainPath := filepath.Join(dir, "train.ascii")
	writeASCIIFixture(t, trainPath)
	if code := run([]string{"--train", trainPath, "--test", trainPath, "--train-format", "ascii", "--loss", "bogus"}); code == 0 {
		t.Error("expected nonzero exit code for unknown --loss")
	}
}

func TestRunEndToEndGDSucceeds(t *testing.T) {
	dir := t.TempDir()
	trainPath := filepath.Join(dir, "train.ascii")
	writeASCIIFixture(t, trainPath)
	code := run([]string{
		"--train", trainPath,
		"--test", trainPath,
		"--train-format", "ascii",
		"--clf", "gd",
		"--rounds", "20",
		"--lambda", "1e-3",
	})
	if code != 0 {
		t.Fatalf("run() = %d, want 0", code)
	}
}

func TestRunEndToEndSGDNoLockSucceeds(t *testing.T) {
	dir := t.TempDir()
	trainPath := filepath.Join(dir, "train.ascii")
	writeASCIIFixture(t, trainPath)
	code := run([]string{
		"--train", trainPath,
		"--test", trainPath,
		"--train-format", "ascii",
		"--clf", "sgd-nolock",
		"--rounds", "20",
		"--lambda", "1e-3",
	})
	if code != 0 {
		t.Fatalf("run() = %d, want 0", code)
	}
}
