package fs

import (
	"context"
	"errors"
	"sync"

	"github.com/justyntemme/fexplorer/internal/debug"
)

// OpType selects what a Request does.
type OpType int

const (
	FetchDir OpType = iota
	CreateFile
	CreateFolder
	Delete
	Copy
	Trash
)

var opNames = [...]string{"fetch_dir", "create_file", "create_folder", "delete", "copy", "trash"}

func (o OpType) String() string {
	if int(o) < len(opNames) {
		return opNames[o]
	}
	return "unknown"
}

// ErrClosed is the cause of every error returned after Close.
var ErrClosed = errors.New("file system executor closed")

type Request struct {
	Op      OpType
	Path    string // directory to list, parent to create in, target to remove, source to copy
	Name    string // new file or folder name
	Dest    string // copy destination folder
	Options ListOptions
	Gen     int64 // Generation counter to track stale requests
}

type Response struct {
	Op      OpType
	Path    string
	Entries []Entry // FetchDir
	Entry   Entry   // CreateFile, CreateFolder, Copy
	Parent  string  // Delete, Trash
	Err     error
	Gen     int64 // Generation counter from request
}

// System runs listing and mutation requests on a fixed pool of workers so
// callers never do filesystem work on their own goroutine.
type System struct {
	ProgressChan chan Progress // copy progress, buffered to avoid blocking

	mutator *Mutator
	workers int
	reqs    chan job

	mu      sync.RWMutex
	closed  bool
	started sync.Once
	wg      sync.WaitGroup
}

type job struct {
	ctx   context.Context
	req   Request
	reply chan Response
}

// NewSystem creates an executor with the given number of workers. Mutations
// publish their affected paths to pub, which may be nil.
func NewSystem(pub Publisher, workers int) *System {
	if workers < 1 {
		workers = 1
	}
	s := &System{
		ProgressChan: make(chan Progress, 100),
		mutator:      NewMutator(pub),
		workers:      workers,
		reqs:         make(chan job, workers*4),
	}
	s.mutator.Progress = s.ProgressChan
	return s
}

// Start launches the workers. Calling it again has no effect.
func (s *System) Start() {
	s.started.Do(func() {
		for i := 0; i < s.workers; i++ {
			s.wg.Add(1)
			go s.worker()
		}
	})
}

func (s *System) worker() {
	defer s.wg.Done()
	for j := range s.reqs {
		debug.Log(debug.FS, "Request: op=%s path=%q gen=%d", j.req.Op, j.req.Path, j.req.Gen)
		resp := s.handle(j.ctx, j.req)
		debug.Log(debug.FS, "Response: op=%s path=%q entries=%d gen=%d err=%v",
			resp.Op, resp.Path, len(resp.Entries), resp.Gen, resp.Err)
		j.reply <- resp
	}
}

func (s *System) handle(ctx context.Context, req Request) Response {
	resp := Response{Op: req.Op, Path: req.Path, Gen: req.Gen}
	if err := ctx.Err(); err != nil {
		resp.Err = wrapError(req.Op.String(), req.Path, err, KindIO)
		return resp
	}
	switch req.Op {
	case FetchDir:
		resp.Entries, resp.Err = List(ctx, req.Path, req.Options)
	case CreateFile:
		resp.Entry, resp.Err = s.mutator.CreateFile(ctx, req.Path, req.Name)
	case CreateFolder:
		resp.Entry, resp.Err = s.mutator.CreateFolder(ctx, req.Path, req.Name)
	case Delete:
		resp.Parent, resp.Err = s.mutator.Delete(ctx, req.Path)
	case Copy:
		resp.Entry, resp.Err = s.mutator.Copy(ctx, req.Path, req.Dest)
	case Trash:
		resp.Parent, resp.Err = s.mutator.Trash(ctx, req.Path)
	default:
		resp.Err = newError(req.Op.String(), req.Path, KindIO, errors.New("unknown operation"))
	}
	return resp
}

// Submit queues req and returns a channel that receives exactly one
// response. It blocks only while the queue is full, and gives up when ctx
// is done.
func (s *System) Submit(ctx context.Context, req Request) <-chan Response {
	reply := make(chan Response, 1)

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		reply <- Response{Op: req.Op, Path: req.Path, Gen: req.Gen,
			Err: newError(req.Op.String(), req.Path, KindIO, ErrClosed)}
		return reply
	}
	select {
	case s.reqs <- job{ctx: ctx, req: req, reply: reply}:
	case <-ctx.Done():
		reply <- Response{Op: req.Op, Path: req.Path, Gen: req.Gen,
			Err: wrapError(req.Op.String(), req.Path, ctx.Err(), KindIO)}
	}
	return reply
}

// Close stops accepting requests and waits for queued ones to finish.
func (s *System) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.reqs)
	s.mu.Unlock()
	s.Start() // drain the queue even if never started
	s.wg.Wait()
}

func (s *System) do(ctx context.Context, req Request) Response {
	select {
	case resp := <-s.Submit(ctx, req):
		return resp
	case <-ctx.Done():
		return Response{Op: req.Op, Path: req.Path, Gen: req.Gen,
			Err: wrapError(req.Op.String(), req.Path, ctx.Err(), KindIO)}
	}
}

// List lists path on a worker.
func (s *System) List(ctx context.Context, path string, opts ListOptions) ([]Entry, error) {
	resp := s.do(ctx, Request{Op: FetchDir, Path: path, Options: opts})
	return resp.Entries, resp.Err
}

// CreateFile creates fileName in parentPath on a worker.
func (s *System) CreateFile(ctx context.Context, parentPath, fileName string) (Entry, error) {
	resp := s.do(ctx, Request{Op: CreateFile, Path: parentPath, Name: fileName})
	return resp.Entry, resp.Err
}

// CreateFolder creates folderName in parentPath on a worker.
func (s *System) CreateFolder(ctx context.Context, parentPath, folderName string) (Entry, error) {
	resp := s.do(ctx, Request{Op: CreateFolder, Path: parentPath, Name: folderName})
	return resp.Entry, resp.Err
}

// Delete removes path on a worker and returns its parent.
func (s *System) Delete(ctx context.Context, path string) (string, error) {
	resp := s.do(ctx, Request{Op: Delete, Path: path})
	return resp.Parent, resp.Err
}

// Copy copies src into destDir on a worker.
func (s *System) Copy(ctx context.Context, src, destDir string) (Entry, error) {
	resp := s.do(ctx, Request{Op: Copy, Path: src, Dest: destDir})
	return resp.Entry, resp.Err
}

// Trash moves path to the trash on a worker and returns its parent.
func (s *System) Trash(ctx context.Context, path string) (string, error) {
	resp := s.do(ctx, Request{Op: Trash, Path: path})
	return resp.Parent, resp.Err
}
