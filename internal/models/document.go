package models

import (
	"encoding/json"
)

// Document is the whole persisted state of the application.
type Document struct {
	Users           map[string]*User          `json:"users"`
	TeacherProblems map[string]*Problem       `json:"teacher_problems"`
	StudentRecords  map[string]*StudentRecord `json:"student_records"`
}

func NewDocument() *Document {
	return &Document{
		Users:           map[string]*User{},
		TeacherProblems: map[string]*Problem{},
		StudentRecords:  map[string]*StudentRecord{},
	}
}

// Normalize replaces nil maps and slices so that a loaded document behaves
// like a freshly created one.
func (d *Document) Normalize() {
	if d.Users == nil {
		d.Users = map[string]*User{}
	}
	if d.TeacherProblems == nil {
		d.TeacherProblems = map[string]*Problem{}
	}
	if d.StudentRecords == nil {
		d.StudentRecords = map[string]*StudentRecord{}
	}
	for name, u := range d.Users {
		if u == nil {
			delete(d.Users, name)
			continue
		}
		if u.Username == "" {
			u.Username = name
		}
	}
	for id, p := range d.TeacherProblems {
		if p == nil {
			delete(d.TeacherProblems, id)
			continue
		}
		if p.ID == "" {
			p.ID = id
		}
	}
	for name, r := range d.StudentRecords {
		if r == nil {
			d.StudentRecords[name] = NewStudentRecord()
			continue
		}
		if r.SolvedProblems == nil {
			r.SolvedProblems = []SolvedProblemRecord{}
		}
		if r.Sessions == nil {
			r.Sessions = []SessionSummary{}
		}
	}
}

// Clone returns a deep copy via a JSON round trip.
func (d *Document) Clone() (*Document, error) {
	data, err := json.Marshal(d)
	if err != nil {
		return nil, err
	}
	out := NewDocument()
	if err := json.Unmarshal(data, out); err != nil {
		return nil, err
	}
	out.Normalize()
	return out, nil
}
