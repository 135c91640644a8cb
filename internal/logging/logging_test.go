package logging

import (
	"errors"
	"testing"
)

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger("info", "json")
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	if logger == nil {
		t.Fatal("Expected Logger, got nil")
	}
	if logger.Logger == nil {
		t.Error("Expected zap.Logger to be initialized")
	}
}

func TestNewLoggerInvalidLevel(t *testing.T) {
	_, err := NewLogger("invalid", "json")
	if err == nil {
		t.Error("Expected error for invalid log level")
	}
}

func TestNewLoggerConsoleFormat(t *testing.T) {
	logger, err := NewLogger("debug", "console")
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	if logger == nil {
		t.Fatal("Expected Logger, got nil")
	}
}

func TestCategory(t *testing.T) {
	logger, _ := NewLogger("info", "json")
	sub := logger.Category("repo", "synchronizer")
	if sub == nil {
		t.Error("Expected category logger, got nil")
	}
	if sub.Name() != "repo.synchronizer" {
		t.Errorf("Expected name 'repo.synchronizer', got %q", sub.Name())
	}
}

func TestWithChannel(t *testing.T) {
	logger, _ := NewLogger("info", "json")
	chLogger := logger.WithChannel(7)

	if chLogger == nil {
		t.Error("Expected logger with channel id, got nil")
	}
}

func TestWithPeer(t *testing.T) {
	logger, _ := NewLogger("info", "json")
	peerLogger := logger.WithPeer("peer-456")

	if peerLogger == nil {
		t.Error("Expected logger with peer id, got nil")
	}
}

func TestWithDoc(t *testing.T) {
	logger, _ := NewLogger("info", "json")
	docLogger := logger.WithDoc("doc-456")

	if docLogger == nil {
		t.Error("Expected logger with doc id, got nil")
	}
}

func TestWithError(t *testing.T) {
	logger, _ := NewLogger("info", "json")
	testErr := errors.New("test error")
	errorLogger := logger.WithError(testErr)

	if errorLogger == nil {
		t.Error("Expected logger with error, got nil")
	}
}