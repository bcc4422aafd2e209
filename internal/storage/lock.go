package storage

import (
	"os"
	"sync"
	"syscall"
)

// FileLock is an exclusive flock on <path>.lock, also held in-process so
// two goroutines of one relay serialize without touching the file.
type FileLock struct {
	path string
	file *os.File
	mu   sync.Mutex
}

// NewFileLock creates a lock for path.
func NewFileLock(path string) *FileLock {
	return &FileLock{path: path}
}

// Lock blocks until the lock is held.
func (l *FileLock) Lock() error {
	l.mu.Lock()

	f, err := os.OpenFile(l.path+".lock", os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		l.mu.Unlock()
		return err
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX); err != nil {
		f.Close()
		l.mu.Unlock()
		return err
	}
	l.file = f
	return nil
}

// Unlock releases the lock and removes the lock file.
func (l *FileLock) Unlock() {
	if l.file == nil {
		return
	}
	syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN)
	l.file.Close()
	os.Remove(l.path + ".lock")
	l.file = nil
	l.mu.Unlock()
}
