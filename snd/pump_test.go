package snd

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
)

func TestPumpChunksEntireStream(t *testing.T) {
	src := strings.NewReader(strings.Repeat("x", 2500))

	var sizes []int
	var total int
	send := func(chunk []byte) error {
		sizes = append(sizes, len(chunk))
		total += len(chunk)
		return nil
	}

	if err := Pump(context.Background(), src, send, 1000); err != nil {
		t.Fatalf("Pump: %v", err)
	}

	if total != 2500 {
		t.Errorf("delivered %d bytes, want 2500", total)
	}
	for i, size := range sizes[:len(sizes)-1] {
		if size != 1000 {
			t.Errorf("chunk %d size = %d, want 1000", i, size)
		}
	}
}

func TestPumpDefaultsChunkSize(t *testing.T) {
	src := bytes.NewReader(make([]byte, DefaultChunkSize+1))

	var first int
	send := func(chunk []byte) error {
		if first == 0 {
			first = len(chunk)
		}
		return nil
	}

	if err := Pump(context.Background(), src, send, 0); err != nil {
		t.Fatalf("Pump: %v", err)
	}
	if first != DefaultChunkSize {
		t.Errorf("first chunk = %d, want %d", first, DefaultChunkSize)
	}
}

// A slow consumer must stall the reader rather than let chunks pile up.
func TestPumpHoldsOneChunkInFlight(t *testing.T) {
	reads := 0
	src := readerFunc(func(p []byte) (int, error) {
		reads++
		if reads > 3 {
			return 0, errors.New("read past consumer")
		}
		p[0] = byte(reads)
		return 1, nil
	})

	sends := 0
	send := func(chunk []byte) error {
		sends++
		// Each read is sent before the next read starts, so the reader
		// can only ever be one chunk ahead of the consumer.
		if reads > sends+1 {
			t.Fatalf("reads=%d ahead of sends=%d", reads, sends)
		}
		if sends == 3 {
			return errors.New("consumer done")
		}
		return nil
	}

	err := Pump(context.Background(), src, send, 16)
	if err == nil || err.Error() != "consumer done" {
		t.Fatalf("err = %v, want consumer done", err)
	}
	if reads != 3 {
		t.Errorf("reads = %d, want 3", reads)
	}
}

func TestPumpStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	src := readerFunc(func(p []byte) (int, error) {
		p[0] = 'a'
		return 1, nil
	})
	send := func(chunk []byte) error {
		cancel()
		return nil
	}

	err := Pump(ctx, src, send, 16)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestPumpPropagatesSendError(t *testing.T) {
	src := strings.NewReader("audio")
	wantErr := errors.New("stream closed")

	err := Pump(
		context.Background(),
		src,
		func([]byte) error { return wantErr },
		16,
	)
	if !errors.Is(err, wantErr) {
		t.Fatalf("err = %v, want %v", err, wantErr)
	}
}

type readerFunc func(p []byte) (int, error)

func (f readerFunc) Read(p []byte) (int, error) { return f(p) }
