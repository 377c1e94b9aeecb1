package main

import (
	"net/http"
	"testing"
	"time"
)

func TestApplyReadTimeoutSetsBothDeadlines(t *testing.T) {
	t.Parallel()

	var srv http.Server
	applyReadTimeout(&srv, 45*time.Second)

	if srv.ReadTimeout != 45*time.Second {
		t.Fatalf("ReadTimeout = %v", srv.ReadTimeout)
	}
	if srv.ReadHeaderTimeout != 45*time.Second {
		t.Fatalf("ReadHeaderTimeout = %v", srv.ReadHeaderTimeout)
	}
}
