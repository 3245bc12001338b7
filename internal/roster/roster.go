// Package roster keeps the student roster in a flat JSON file. The file is
// loaded once at start and rewritten wholesale on every mutation.
package roster

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// Student is one roster entry keyed by StudentID.
type Student struct {
	StudentID    string    `json:"student_id"`
	Name         string    `json:"name"`
	Department   string    `json:"department,omitempty"`
	Year         string    `json:"year,omitempty"`
	RegisteredAt time.Time `json:"registered_at"`
}

// File is a roster backed by a JSON file.
type File struct {
	path string

	mu       sync.RWMutex
	students map[string]Student
}

// Open loads the roster at path; a missing file is an empty roster.
func Open(path string) (*File, error) {
	f := &File{path: path, students: make(map[string]Student)}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return f, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read roster: %w", err)
	}
	if len(data) == 0 {
		return f, nil
	}
	var list []Student
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("decode roster: %w", err)
	}
	for _, s := range list {
		f.students[s.StudentID] = s
	}
	return f, nil
}

// List returns all students ordered by student id.
func (f *File) List() []Student {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]Student, 0, len(f.students))
	for _, s := range f.students {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StudentID < out[j].StudentID })
	return out
}

// Count returns the number of students.
func (f *File) Count() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.students)
}

// Get looks a student up by id.
func (f *File) Get(studentID string) (Student, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	s, ok := f.students[studentID]
	return s, ok
}

// Upsert adds or replaces a student and rewrites the file.
func (f *File) Upsert(studentID, name, department, year string) error {
	if studentID == "" {
		return errors.New("student id required")
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	s := Student{StudentID: studentID, Name: name, Department: department, Year: year, RegisteredAt: time.Now().UTC()}
	if prev, ok := f.students[studentID]; ok {
		s.RegisteredAt = prev.RegisteredAt
	}
	f.students[studentID] = s
	return f.flushLocked()
}

func (f *File) flushLocked() error {
	list := make([]Student, 0, len(f.students))
	for _, s := range f.students {
		list = append(list, s)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].StudentID < list[j].StudentID })
	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("prepare roster directory: %w", err)
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write roster: %w", err)
	}
	return os.Rename(tmp, f.path)
}
