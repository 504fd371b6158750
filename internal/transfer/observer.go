package transfer

import (
	"time"

	"go.uber.org/zap"

	"github.com/Tyrowin/relaychat/internal/protocol"
)

// Progress is reported after every chunk a session sends or writes.
type Progress struct {
	TransferID string
	FileName   string
	Mode       Mode
	BytesDone  uint64
	BytesTotal uint64
	// Elapsed is the time spent on the last chunk only.
	Elapsed time.Duration
}

// Percent returns completion in the range [0, 100].
func (p Progress) Percent() float64 {
	if p.BytesTotal == 0 {
		return 100
	}
	return float64(p.BytesDone) / float64(p.BytesTotal) * 100
}

// Observer receives session events. Rendering them is the observer's job.
// Methods are called from the session's worker goroutine.
type Observer interface {
	Progress(p Progress)
	// Completed is given the local file: the source for a send, the
	// reassembled file for a receive.
	Completed(path string, m protocol.Manifest)
	Failed(transferID string, err error)
}

// ObserverFuncs adapts plain functions to Observer. Nil fields are skipped.
type ObserverFuncs struct {
	OnProgress  func(Progress)
	OnCompleted func(string, protocol.Manifest)
	OnFailed    func(string, error)
}

func (o ObserverFuncs) Progress(p Progress) {
	if o.OnProgress != nil {
		o.OnProgress(p)
	}
}

func (o ObserverFuncs) Completed(path string, m protocol.Manifest) {
	if o.OnCompleted != nil {
		o.OnCompleted(path, m)
	}
}

func (o ObserverFuncs) Failed(transferID string, err error) {
	if o.OnFailed != nil {
		o.OnFailed(transferID, err)
	}
}

// LogObserver writes session events to a zap logger.
type LogObserver struct {
	Log *zap.SugaredLogger
}

func (o LogObserver) Progress(p Progress) {
	o.Log.Debugw("transfer", "status", "progress", "transfer_id", p.TransferID, "file", p.FileName,
		"mode", p.Mode, "bytes", p.BytesDone, "total", p.BytesTotal, "chunk_ms", p.Elapsed.Milliseconds())
}

func (o LogObserver) Completed(path string, m protocol.Manifest) {
	o.Log.Infow("transfer", "status", "complete", "transfer_id", m.TransferID, "file", m.FileName,
		"path", path, "bytes", m.TotalBytes)
}

func (o LogObserver) Failed(transferID string, err error) {
	o.Log.Warnw("transfer", "status", "failed", "transfer_id", transferID, "error", err)
}
