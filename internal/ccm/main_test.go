package ccm

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"
)

func TestMain(m *testing.M) {
	code := m.Run()
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	if err := CloseAll(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "closing leaked clusters: %v\n", err)
	}
	cancel()
	os.Exit(code)
}
