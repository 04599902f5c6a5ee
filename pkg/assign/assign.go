// Package assign maps storage targets to compute nodes.
//
// Every target seen during the scan is owned by exactly one node, so that a
// target is only ever accessed from a single node and never contended by
// lock traffic between nodes. The assignment is a plain round-robin over the
// targets in the order they were first encountered; it is not load-aware.
//
// The assignment is computed once, on the coordinator, and is never
// transmitted: node leaders only receive the records that belong to them.
package assign

import (
	"errors"
	"fmt"

	"github.com/marmos91/lustrebulk/pkg/content"
)

var (
	// ErrNoNodes is returned when assigning targets to fewer than one node.
	ErrNoNodes = errors.New("node count must be at least 1")

	// ErrUnassignedTarget is returned when a record's target has no owner.
	ErrUnassignedTarget = errors.New("target has no owning node")
)

// ContentMap accumulates records per storage target.
//
// Targets remember the order in which they were first added; Targets()
// returns that order and it drives the round-robin assignment.
type ContentMap struct {
	order []content.TargetID
	lists map[content.TargetID][]content.StridedContent
}

// NewContentMap returns an empty map.
func NewContentMap() *ContentMap {
	return &ContentMap{lists: make(map[content.TargetID][]content.StridedContent)}
}

// Add appends a record to the list of target. Its signature matches
// scan.Sink so that a method value can be handed directly to the scanner.
func (m *ContentMap) Add(target content.TargetID, sc content.StridedContent) {
	list, ok := m.lists[target]
	if !ok {
		m.order = append(m.order, target)
	}
	m.lists[target] = append(list, sc)
}

// Targets returns the distinct targets in first-encounter order.
func (m *ContentMap) Targets() []content.TargetID {
	return m.order
}

// Records returns the records of one target.
func (m *ContentMap) Records(target content.TargetID) []content.StridedContent {
	return m.lists[target]
}

// Len returns the total number of records.
func (m *ContentMap) Len() int {
	n := 0
	for _, list := range m.lists {
		n += len(list)
	}
	return n
}

// Assignment maps a target to its owning node index.
type Assignment map[content.TargetID]int

// Assign gives the i-th target node i mod nodeCount.
//
// The result only depends on the order of targets, so any process holding
// the same target list in the same order reconstructs the same map.
func Assign(targets []content.TargetID, nodeCount int) (Assignment, error) {
	if nodeCount < 1 {
		return nil, fmt.Errorf("assign %d targets: %w", len(targets), ErrNoNodes)
	}

	assignment := make(Assignment, len(targets))
	node := 0
	for _, target := range targets {
		if _, seen := assignment[target]; seen {
			continue
		}
		assignment[target] = node
		if node++; node == nodeCount {
			node = 0
		}
	}
	return assignment, nil
}

// Partition splits the records of m into one list per node. Within a node,
// records are ordered by target (first-encounter order) and then by the
// order in which they were added.
func Partition(m *ContentMap, assignment Assignment, nodeCount int) ([][]content.StridedContent, error) {
	if nodeCount < 1 {
		return nil, ErrNoNodes
	}

	parts := make([][]content.StridedContent, nodeCount)
	for _, target := range m.Targets() {
		node, ok := assignment[target]
		if !ok {
			return nil, fmt.Errorf("target %d: %w", target, ErrUnassignedTarget)
		}
		if node < 0 || node >= nodeCount {
			return nil, fmt.Errorf("target %d assigned to node %d of %d: %w", target, node, nodeCount, ErrUnassignedTarget)
		}
		parts[node] = append(parts[node], m.Records(target)...)
	}
	return parts, nil
}

// SplitRoundRobin deals list across l local processes: record i goes to
// local rank i mod l. Every record lands in exactly one part.
func SplitRoundRobin(list []content.StridedContent, l int) [][]content.StridedContent {
	if l < 1 {
		l = 1
	}

	parts := make([][]content.StridedContent, l)
	for i := range parts {
		parts[i] = make([]content.StridedContent, 0, (len(list)+l-1-i)/l)
	}
	for i, sc := range list {
		parts[i%l] = append(parts[i%l], sc)
	}
	return parts
}
