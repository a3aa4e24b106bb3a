// Package nodepath holds the store layout shared by every recipe: the root
// namespaces and the naming of sequential candidate nodes.
package nodepath

import (
	"fmt"
	"path"
	"sort"
	"strconv"
	"strings"
)

const (
	LocksRoot    = "/locks"
	LeaderRoot   = "/leader"
	BarriersRoot = "/barriers"
	CountersRoot = "/counters"
	QueuesRoot   = "/queues"
)

const (
	LockPrefix  = "lock"
	ReadPrefix  = "read"
	WritePrefix = "write"
	LatchPrefix = "latch"
	QueuePrefix = "qn"

	ReadyNode = "ready"
)

func Lock(name string) string    { return path.Join(LocksRoot, name) }
func Leader(name string) string  { return path.Join(LeaderRoot, name) }
func Barrier(name string) string { return path.Join(BarriersRoot, name) }
func Counter(name string) string { return path.Join(CountersRoot, name) }
func Queue(name string) string   { return path.Join(QueuesRoot, name) }

// CandidatePrefix is the key handed to a sequential create under parent;
// the store appends the sequence.
func CandidatePrefix(parent string, prefix string, participantID string) string {
	return path.Join(parent, fmt.Sprintf("%s-%s-", prefix, participantID))
}

func QueueItemPrefix(parent string) string {
	return path.Join(parent, QueuePrefix+"-")
}

type Candidate struct {
	Name          string
	Prefix        string
	ParticipantID string
	Sequence      int64
}

// ParseCandidate splits <prefix>-<participantID>-<sequence>. The participant
// id may itself contain dashes.
func ParseCandidate(name string) (Candidate, bool) {
	first := strings.Index(name, "-")
	last := strings.LastIndex(name, "-")
	if first < 0 || last == len(name)-1 {
		return Candidate{}, false
	}

	sequence, err := strconv.ParseInt(name[last+1:], 10, 64)
	if err != nil {
		return Candidate{}, false
	}

	candidate := Candidate{
		Name:     name,
		Prefix:   name[:first],
		Sequence: sequence,
	}
	if last > first {
		candidate.ParticipantID = name[first+1 : last]
	}
	return candidate, true
}

type Candidates []Candidate

func (c Candidates) Len() int           { return len(c) }
func (c Candidates) Swap(i, j int)      { c[i], c[j] = c[j], c[i] }
func (c Candidates) Less(i, j int) bool { return c[i].Sequence < c[j].Sequence }

// SortedCandidates parses children and orders them by sequence, dropping
// anything that is not a candidate (such as a ready marker).
func SortedCandidates(children []string) Candidates {
	candidates := Candidates{}
	for _, child := range children {
		candidate, ok := ParseCandidate(child)
		if ok {
			candidates = append(candidates, candidate)
		}
	}
	sort.Sort(candidates)
	return candidates
}

func (c Candidates) IndexOf(name string) int {
	for i, candidate := range c {
		if candidate.Name == name {
			return i
		}
	}
	return -1
}

func (c Candidates) WithPrefix(prefix string) Candidates {
	filtered := Candidates{}
	for _, candidate := range c {
		if candidate.Prefix == prefix {
			filtered = append(filtered, candidate)
		}
	}
	return filtered
}

func (c Candidates) Names() []string {
	names := make([]string, len(c))
	for i, candidate := range c {
		names[i] = candidate.Name
	}
	return names
}

func (c Candidates) ParticipantIDs() []string {
	ids := make([]string, len(c))
	for i, candidate := range c {
		ids[i] = candidate.ParticipantID
	}
	return ids
}
