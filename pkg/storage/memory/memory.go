package memory

import (
	"context"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/marmos91/dittovfs/pkg/storage"
)

// Backend is an in-memory storage.Backend.
//
// Content lives in a flat map keyed by canonical internal path, with the
// root ("") always present as a directory. Directory mtimes change whenever
// a direct child is added, removed or renamed, which is what cache watchers
// rely on to detect changes.
//
// Open handles work on a private copy of the content that replaces the
// stored content on Close, mirroring the write-back behavior of remote
// backends.
//
// Thread Safety:
// Safe for concurrent use by multiple goroutines.
type Backend struct {
	mu       sync.RWMutex
	name     string
	capacity int64
	nodes    map[string]*node
	now      func() time.Time
}

type node struct {
	typ   storage.FileType
	data  []byte
	mtime time.Time
}

// Option customizes a Backend.
type Option func(*Backend)

// WithClock replaces time.Now for mtimes.
func WithClock(now func() time.Time) Option {
	return func(b *Backend) {
		b.now = now
	}
}

// New creates an empty backend. capacity is the total number of bytes the
// backend reports as available; storage.SpaceUnknown disables the limit.
func New(name string, capacity int64, opts ...Option) *Backend {
	b := &Backend{
		name:     name,
		capacity: capacity,
		nodes:    make(map[string]*node),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.nodes[""] = &node{typ: storage.TypeDirectory, mtime: b.now()}
	return b
}

// Factory builds memory backends from "name=" and "capacity=" arguments.
func Factory(ctx context.Context, args []string) (storage.Backend, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	type memoryOptions struct {
		Name     string `mapstructure:"name"`
		Capacity int64  `mapstructure:"capacity"`
	}

	positional, options := storage.ParseArguments(args)
	opts := memoryOptions{Capacity: storage.SpaceUnknown}
	if err := storage.DecodeOptions(options, &opts); err != nil {
		return nil, err
	}
	if opts.Name == "" && len(positional) > 0 {
		opts.Name = positional[0]
	}
	if opts.Name == "" {
		return nil, storage.Errorf("create", "", storage.ErrInvalidParameters, "memory backend: name is required")
	}

	return New(opts.Name, opts.Capacity), nil
}

func (b *Backend) ID() string {
	return "memory::" + b.name
}

func clean(op, p string) (string, error) {
	cp, ok := storage.CleanPath(p)
	if !ok {
		return "", storage.Errorf(op, p, storage.ErrInvalidParameters, "path escapes backend root")
	}
	return cp, nil
}

// touchParentLocked bumps the mtime of the directory holding p.
func (b *Backend) touchParentLocked(p string) {
	if p == "" {
		return
	}
	if parent, ok := b.nodes[storage.ParentPath(p)]; ok {
		parent.mtime = b.now()
	}
}

// checkParentLocked verifies the parent of p is an existing directory.
func (b *Backend) checkParentLocked(op, p string) error {
	parent, ok := b.nodes[storage.ParentPath(p)]
	if !ok {
		return storage.NewError(op, p, storage.ErrNotFound, nil)
	}
	if parent.typ != storage.TypeDirectory {
		return storage.NewError(op, p, storage.ErrNotDirectory, nil)
	}
	return nil
}

func (b *Backend) usedLocked() int64 {
	var used int64
	for _, n := range b.nodes {
		used += int64(len(n.data))
	}
	return used
}

func (b *Backend) Mkdir(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := clean("mkdir", path)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.nodes[p]; exists {
		return storage.NewError("mkdir", p, storage.ErrExists, nil)
	}
	if err := b.checkParentLocked("mkdir", p); err != nil {
		return err
	}

	b.nodes[p] = &node{typ: storage.TypeDirectory, mtime: b.now()}
	b.touchParentLocked(p)
	return nil
}

func (b *Backend) Rmdir(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := clean("rmdir", path)
	if err != nil {
		return err
	}
	if p == "" {
		return storage.Errorf("rmdir", p, storage.ErrInvalidParameters, "cannot remove backend root")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	n, ok := b.nodes[p]
	if !ok {
		return storage.NewError("rmdir", p, storage.ErrNotFound, nil)
	}
	if n.typ != storage.TypeDirectory {
		return storage.NewError("rmdir", p, storage.ErrNotDirectory, nil)
	}

	for key := range b.nodes {
		if key == p || isBelow(key, p) {
			delete(b.nodes, key)
		}
	}
	b.touchParentLocked(p)
	return nil
}

func (b *Backend) Unlink(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := clean("unlink", path)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	n, ok := b.nodes[p]
	if !ok {
		return storage.NewError("unlink", p, storage.ErrNotFound, nil)
	}
	if n.typ == storage.TypeDirectory {
		return storage.NewError("unlink", p, storage.ErrIsDirectory, nil)
	}

	delete(b.nodes, p)
	b.touchParentLocked(p)
	return nil
}

func (b *Backend) Rename(ctx context.Context, src, dst string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	from, err := clean("rename", src)
	if err != nil {
		return err
	}
	to, err := clean("rename", dst)
	if err != nil {
		return err
	}
	if from == "" || to == "" {
		return storage.Errorf("rename", src, storage.ErrInvalidParameters, "cannot rename backend root")
	}
	if from == to {
		return nil
	}
	if isBelow(to, from) {
		return storage.Errorf("rename", src, storage.ErrInvalidParameters, "cannot move %q below itself", src)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	n, ok := b.nodes[from]
	if !ok {
		return storage.NewError("rename", from, storage.ErrNotFound, nil)
	}
	if err := b.checkParentLocked("rename", to); err != nil {
		return err
	}
	if existing, ok := b.nodes[to]; ok {
		if existing.typ == storage.TypeDirectory && n.typ != storage.TypeDirectory {
			return storage.NewError("rename", to, storage.ErrIsDirectory, nil)
		}
		for key := range b.nodes {
			if key == to || isBelow(key, to) {
				delete(b.nodes, key)
			}
		}
	}

	moved := make(map[string]*node)
	for key, child := range b.nodes {
		if key == from {
			moved[to] = child
		} else if isBelow(key, from) {
			moved[to+key[len(from):]] = child
		}
	}
	for key := range b.nodes {
		if key == from || isBelow(key, from) {
			delete(b.nodes, key)
		}
	}
	for key, child := range moved {
		b.nodes[key] = child
	}

	b.touchParentLocked(from)
	b.touchParentLocked(to)
	return nil
}

func (b *Backend) Stat(ctx context.Context, path string) (*storage.FileInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := clean("stat", path)
	if err != nil {
		return nil, err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	n, ok := b.nodes[p]
	if !ok {
		return nil, storage.NewError("stat", p, storage.ErrNotFound, nil)
	}
	return n.info(storage.BaseName(p)), nil
}

func (n *node) info(name string) *storage.FileInfo {
	return &storage.FileInfo{
		Name:  name,
		Size:  int64(len(n.data)),
		MTime: n.mtime,
		Type:  n.typ,
	}
}

func (b *Backend) Open(ctx context.Context, path string, mode storage.Mode) (storage.File, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !mode.Valid() {
		return nil, storage.Errorf("fopen", path, storage.ErrUnsupportedMode, "mode %q", mode)
	}
	p, err := clean("fopen", path)
	if err != nil {
		return nil, err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	n, exists := b.nodes[p]
	if exists && n.typ == storage.TypeDirectory {
		return nil, storage.NewError("fopen", p, storage.ErrIsDirectory, nil)
	}
	if !exists && mode.MustExist() {
		return nil, storage.NewError("fopen", p, storage.ErrNotFound, nil)
	}
	if exists && mode.Exclusive() {
		return nil, storage.NewError("fopen", p, storage.ErrExists, nil)
	}
	if !exists {
		if err := b.checkParentLocked("fopen", p); err != nil {
			return nil, err
		}
	}

	var data []byte
	if exists && !mode.Truncates() {
		data = append([]byte(nil), n.data...)
	}

	f := &file{backend: b, path: p, mode: mode, data: data}
	if mode.Appends() {
		f.pos = int64(len(data))
	}
	// creating or truncating takes effect even when nothing is written
	if mode.Writable() && (!exists || mode.Truncates()) {
		f.dirty = true
	}
	return f, nil
}

// commit stores data at p. Called by file.Close.
func (b *Backend) commit(p string, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.checkParentLocked("write", p); err != nil {
		return err
	}

	var previous int64
	if existing, ok := b.nodes[p]; ok {
		if existing.typ == storage.TypeDirectory {
			return storage.NewError("write", p, storage.ErrIsDirectory, nil)
		}
		previous = int64(len(existing.data))
	}
	if b.capacity >= 0 && b.usedLocked()-previous+int64(len(data)) > b.capacity {
		return storage.NewError("write", p, storage.ErrInsufficientStorage, nil)
	}

	_, existed := b.nodes[p]
	b.nodes[p] = &node{typ: storage.TypeFile, data: data, mtime: b.now()}
	if !existed {
		b.touchParentLocked(p)
	}
	return nil
}

func (b *Backend) PutContents(ctx context.Context, path string, data []byte) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	p, err := clean("file_put_contents", path)
	if err != nil {
		return 0, err
	}
	if err := b.commit(p, append([]byte(nil), data...)); err != nil {
		return 0, err
	}
	return len(data), nil
}

func (b *Backend) GetContents(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := clean("file_get_contents", path)
	if err != nil {
		return nil, err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	n, ok := b.nodes[p]
	if !ok {
		return nil, storage.NewError("file_get_contents", p, storage.ErrNotFound, nil)
	}
	if n.typ == storage.TypeDirectory {
		return nil, storage.NewError("file_get_contents", p, storage.ErrIsDirectory, nil)
	}
	return append([]byte(nil), n.data...), nil
}

func (b *Backend) IsDir(ctx context.Context, path string) (bool, error) {
	info, err := b.Stat(ctx, path)
	if err != nil {
		return false, err
	}
	return info.IsDir(), nil
}

func (b *Backend) FileType(ctx context.Context, path string) (storage.FileType, error) {
	info, err := b.Stat(ctx, path)
	if err != nil {
		return "", err
	}
	return info.Type, nil
}

func (b *Backend) ReadDir(ctx context.Context, path string) ([]storage.FileInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := clean("opendir", path)
	if err != nil {
		return nil, err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	dir, ok := b.nodes[p]
	if !ok {
		return nil, storage.NewError("opendir", p, storage.ErrNotFound, nil)
	}
	if dir.typ != storage.TypeDirectory {
		return nil, storage.NewError("opendir", p, storage.ErrNotDirectory, nil)
	}

	var entries []storage.FileInfo
	for key, n := range b.nodes {
		if key != "" && storage.ParentPath(key) == p {
			entries = append(entries, *n.info(storage.BaseName(key)))
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

func (b *Backend) FreeSpace(ctx context.Context, _ string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if b.capacity < 0 {
		return storage.SpaceUnknown, nil
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	free := b.capacity - b.usedLocked()
	if free < 0 {
		free = 0
	}
	return free, nil
}

// isBelow reports whether p lies strictly inside dir.
func isBelow(p, dir string) bool {
	if dir == "" {
		return p != ""
	}
	return len(p) > len(dir) && p[:len(dir)] == dir && p[len(dir)] == '/'
}

// file is an open handle on a private copy of the content.
type file struct {
	backend *Backend
	path    string
	mode    storage.Mode

	mu     sync.Mutex
	data   []byte
	pos    int64
	dirty  bool
	closed bool
}

func (f *file) Read(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return 0, storage.NewError("read", f.path, storage.ErrIO, io.ErrClosedPipe)
	}
	if !f.mode.Readable() {
		return 0, storage.NewError("read", f.path, storage.ErrUnsupportedMode, nil)
	}
	if f.pos >= int64(len(f.data)) {
		return 0, io.EOF
	}
	n := copy(p, f.data[f.pos:])
	f.pos += int64(n)
	return n, nil
}

func (f *file) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return 0, storage.NewError("write", f.path, storage.ErrIO, io.ErrClosedPipe)
	}
	if !f.mode.Writable() {
		return 0, storage.NewError("write", f.path, storage.ErrUnsupportedMode, nil)
	}
	if f.mode.Appends() {
		f.pos = int64(len(f.data))
	}

	end := f.pos + int64(len(p))
	if end > int64(len(f.data)) {
		grown := make([]byte, end)
		copy(grown, f.data)
		f.data = grown
	}
	copy(f.data[f.pos:], p)
	f.pos = end
	f.dirty = true
	return len(p), nil
}

func (f *file) Seek(offset int64, whence int) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var base int64
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		base = f.pos
	case io.SeekEnd:
		base = int64(len(f.data))
	default:
		return 0, storage.Errorf("seek", f.path, storage.ErrInvalidParameters, "whence %d", whence)
	}
	if base+offset < 0 {
		return 0, storage.Errorf("seek", f.path, storage.ErrInvalidParameters, "negative position")
	}
	f.pos = base + offset
	return f.pos, nil
}

func (f *file) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return nil
	}
	f.closed = true

	if !f.dirty {
		return nil
	}
	return f.backend.commit(f.path, f.data)
}

// Abort releases the handle and drops its buffer. The backend keeps the
// content it had when the handle was opened.
func (f *file) Abort() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.closed = true
	f.dirty = false
	f.data = nil
	return nil
}
