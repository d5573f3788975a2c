package clock

import (
	"testing"
	"time"
)

func TestReal_NowAdvances(t *testing.T) {
	c := New()
	a := c.Now()
	time.Sleep(time.Millisecond)
	if !c.Now().After(a) {
		t.Error("Now() did not advance")
	}
}

func TestReal_AfterFuncFires(t *testing.T) {
	c := New()
	done := make(chan struct{})
	c.AfterFunc(time.Millisecond, func() { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("AfterFunc callback did not fire")
	}
}

func TestReal_AfterFuncStop(t *testing.T) {
	c := New()
	fired := make(chan struct{}, 1)
	timer := c.AfterFunc(time.Hour, func() { fired <- struct{}{} })

	if !timer.Stop() {
		t.Error("Stop() on pending timer returned false")
	}
	if timer.Stop() {
		t.Error("second Stop() returned true")
	}
}

func TestReal_Ticker(t *testing.T) {
	c := New()
	tk := c.NewTicker(time.Millisecond)
	defer tk.Stop()

	select {
	case <-tk.C():
	case <-time.After(time.Second):
		t.Fatal("ticker did not tick")
	}
}
