package apex

import (
	"io"
	"reflect"
	"testing"
	"time"
)

func TestProxy(t *testing.T) {
	queue := NewReplayQueue(4)
	store := NewParamStore()
	store.Publish([]byte("v1"))

	pipe1, pipe2 := bidirPipe()
	defer pipe1.Close()
	defer pipe2.Close()

	done := make(chan struct{})
	go ProxyProvide(pipe1, queue, store, done)

	proxy, err := ProxyConsume(pipe2, 2)
	if err != nil {
		t.Fatal(err)
	}
	defer proxy.Close()

	if snap, version := proxy.Params().Read(); string(snap) != "v1" || version != 1 {
		t.Errorf("expected v1 at version 1 but got %s at version %d", snap, version)
	}

	batch := &PrioritizedBatch{
		Priorities: Priorities{"5:0": 1.5},
		Batch: []*NStepTransition{{
			State:        []float64{1, 2},
			Action:       1,
			Reward:       2.5,
			Discount:     0.9801,
			Q:            []float64{0.5, 1.5},
			LandingState: []float64{3, 4},
			LandingQ:     []float64{0.25, 0.75},
			Key:          "5:0",
		}},
	}
	if err := proxy.Queue().Send(batch, nil); err != nil {
		t.Fatal(err)
	}
	msg, err := queue.Receive(timeout(time.Second * 5))
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(msg, batch) {
		t.Errorf("expected batch %v but got %v", batch, msg)
	}

	// A publish on the learner side reaches the mirror at
	// the next refresh.
	store.Publish([]byte("v2"))
	deadline := time.Now().Add(time.Second * 5)
	for {
		snap, version := proxy.Params().Read()
		if version >= 2 {
			if string(snap) != "v2" {
				t.Errorf("expected v2 but got %s", snap)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("parameters never refreshed")
		}
		time.Sleep(time.Millisecond * 20)
	}
}

func TestProxyStop(t *testing.T) {
	queue := NewReplayQueue(1)
	store := NewParamStore()

	pipe1, pipe2 := bidirPipe()
	defer pipe1.Close()
	defer pipe2.Close()

	done := make(chan struct{})
	provideRes := make(chan error, 1)
	go func() {
		provideRes <- ProxyProvide(pipe1, queue, store, done)
	}()

	proxy, err := ProxyConsume(pipe2, 1)
	if err != nil {
		t.Fatal(err)
	}
	defer proxy.Close()

	// Fill the learner-side queue so that the forwarded
	// push blocks, then stop the provider mid-push.
	fill := &PrioritizedBatch{
		Priorities: Priorities{"0:0": 1},
		Batch:      []*NStepTransition{{Key: "0:0"}},
	}
	if err := queue.Send(fill, nil); err != nil {
		t.Fatal(err)
	}
	blocked := &PrioritizedBatch{
		Priorities: Priorities{"0:1": 1},
		Batch:      []*NStepTransition{{Key: "0:1"}},
	}
	if err := proxy.Queue().Send(blocked, nil); err != nil {
		t.Fatal(err)
	}
	close(done)

	select {
	case err := <-provideRes:
		if err != nil {
			t.Errorf("expected nil after a stop but got %v", err)
		}
	case <-time.After(time.Second * 5):
		t.Fatal("provider never stopped")
	}

	select {
	case <-proxy.Done():
	case <-time.After(time.Second * 5):
		t.Fatal("proxy never noticed the stop")
	}
	if err := proxy.Err(); err == nil {
		t.Error("expected a forwarding error")
	}
}

func timeout(d time.Duration) <-chan struct{} {
	res := make(chan struct{})
	go func() {
		time.Sleep(d)
		close(res)
	}()
	return res
}

func bidirPipe() (*readerWriter, *readerWriter) {
	r1, w1 := io.Pipe()
	r2, w2 := io.Pipe()
	return &readerWriter{r1, w2}, &readerWriter{r2, w1}
}

type readerWriter struct {
	reader io.ReadCloser
	writer io.WriteCloser
}

func (b *readerWriter) Read(d []byte) (int, error) {
	return b.reader.Read(d)
}

func (b *readerWriter) Write(d []byte) (int, error) {
	return b.writer.Write(d)
}

func (b *readerWriter) Close() error {
	b.reader.Close()
	b.writer.Close()
	return nil
}
