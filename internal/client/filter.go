package client

import (
	"strings"

	"campusattend/internal/od"
)

// Filter keeps requests whose student name, student id or activity name
// contains term, ignoring case. An empty term keeps everything.
func Filter(requests []od.Request, term string) []od.Request {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return requests
	}
	out := make([]od.Request, 0, len(requests))
	for _, r := range requests {
		if strings.Contains(strings.ToLower(r.StudentName), term) ||
			strings.Contains(strings.ToLower(r.StudentID), term) ||
			strings.Contains(strings.ToLower(r.ActivityName), term) {
			out = append(out, r)
		}
	}
	return out
}
