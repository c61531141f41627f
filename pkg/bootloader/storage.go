package bootloader

import (
	"encoding/binary"
	"errors"
	"io/fs"
	"os"
	"sync"

	"github.com/golang/glog"
)

// Storage is a word of memory which survives a warm reset but not a
// power cycle.
type Storage interface {
	Read() uint32
	Write(uint32)
}

// MemStorage keeps the word in process memory.
type MemStorage struct {
	lock sync.Mutex
	word uint32
}

// Read implements Storage.
func (s *MemStorage) Read() uint32 {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.word
}

// Write implements Storage.
func (s *MemStorage) Write(word uint32) {
	s.lock.Lock()
	s.word = word
	s.lock.Unlock()
}

// FileStorage keeps the word in a file so it survives restarting the
// simulator. Removing the file models a power cycle.
type FileStorage struct {
	Path string
}

// Read implements Storage. An unreadable word reads as zero.
func (s *FileStorage) Read() uint32 {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			glog.Warningf("bootloader: read %s: %v", s.Path, err)
		}
		return 0
	}
	if len(data) != 4 {
		return 0
	}
	return binary.LittleEndian.Uint32(data)
}

// Write implements Storage.
func (s *FileStorage) Write(word uint32) {
	var data [4]byte
	binary.LittleEndian.PutUint32(data[:], word)
	if err := os.WriteFile(s.Path, data[:], 0644); err != nil {
		glog.Warningf("bootloader: write %s: %v", s.Path, err)
	}
}
