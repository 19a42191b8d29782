package routes

import (
	"testing"
)

type resizeRecorder struct {
	rows, cols uint16
	calls      int
}

func (r *resizeRecorder) ResizeShell(rows, cols uint16) error {
	r.rows, r.cols = rows, cols
	r.calls++
	return nil
}

func TestSurfaceNotReadyUntilAttached(t *testing.T) {
	s := newWSSurface("web-1")
	if s.Ready() {
		t.Error("fresh surface must not be ready")
	}
	if s.ID() != "web-1" {
		t.Errorf("id = %q", s.ID())
	}
	// Output with no socket attached drops bytes instead of failing, so the
	// PTY copy loop survives a closed terminal window.
	n, err := s.Output().Write([]byte("boot noise"))
	if err != nil || n != 10 {
		t.Errorf("detached write = %d, %v", n, err)
	}
}

func TestControlFrameResize(t *testing.T) {
	h := &handler{}
	sink := &resizeRecorder{}

	h.handleControlFrame(sink, append([]byte{0x00}, []byte(`{"type":"resize","rows":40,"cols":120}`)...))
	if sink.calls != 1 || sink.rows != 40 || sink.cols != 120 {
		t.Errorf("resize = %+v", sink)
	}

	// Text frames arrive without the prefix.
	h.handleControlFrame(sink, []byte(`{"type":"resize","rows":50,"cols":80}`))
	if sink.calls != 2 || sink.rows != 50 {
		t.Errorf("resize = %+v", sink)
	}
}

func TestControlFrameIgnoresGarbage(t *testing.T) {
	h := &handler{}
	sink := &resizeRecorder{}

	h.handleControlFrame(sink, []byte{0x00, 'n', 'o', 'p', 'e'})
	h.handleControlFrame(sink, append([]byte{0x00}, []byte(`{"type":"resize","rows":0,"cols":80}`)...))
	if sink.calls != 0 {
		t.Errorf("resize called %d times for invalid frames", sink.calls)
	}
}
