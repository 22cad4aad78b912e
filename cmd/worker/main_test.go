package main

import (
	"testing"

	"github.com/rmadesk/rmadesk/internal/app"
	_ "github.com/rmadesk/rmadesk/testing"
)

func TestMainSkipsStartupInTestMode(t *testing.T) {
	app.RefreshTestMode()
	if !app.InTestMode() {
		t.Fatal("expected test mode to be enabled")
	}
	main()
}
