package buttontree

import (
	"errors"
	"fmt"

	"vendaschat/internal/model"
)

var (
	// ErrNotFound is returned when a referenced node id does not exist in the tree
	ErrNotFound = errors.New("button not found")
	// ErrCycle is returned when an operation would make a node its own ancestor
	ErrCycle = errors.New("button tree contains a cycle")
)

// ValidationError describes a node that failed validation
type ValidationError struct {
	NodeID string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.NodeID == "" {
		return fmt.Sprintf("invalid button tree: %s", e.Reason)
	}
	return fmt.Sprintf("invalid button %q: %s", e.NodeID, e.Reason)
}

var allowedMethods = map[string]bool{"GET": true, "POST": true, "PUT": true}

var allowedColors = map[model.ButtonColor]bool{
	"":               true,
	model.ColorGreen: true,
	model.ColorBlue:  true,
	model.ColorRed:   true,
}

// Validate checks every node of the tree: non-empty label and response text,
// allowed api method and color, unique ids, and acyclicity. The admin editor
// builds trees by mutable walks, so the duplicate/cycle check is explicit
// rather than assumed.
func Validate(roots []model.ButtonNode) error {
	seen := make(map[string]bool)
	for i := range roots {
		if err := validateNode(&roots[i], seen); err != nil {
			return err
		}
	}
	return nil
}

func validateNode(n *model.ButtonNode, seen map[string]bool) error {
	if n.ID == "" {
		return &ValidationError{Reason: "missing id"}
	}
	if seen[n.ID] {
		// A repeated id means the node reaches itself through the walk,
		// or two nodes alias the same identity. Both break lookups.
		return fmt.Errorf("%w: node %q appears more than once", ErrCycle, n.ID)
	}
	seen[n.ID] = true
	if n.Label == "" {
		return &ValidationError{NodeID: n.ID, Reason: "empty label"}
	}
	if n.ResponseText == "" {
		return &ValidationError{NodeID: n.ID, Reason: "empty response text"}
	}
	if n.APIMethod != "" && !allowedMethods[n.APIMethod] {
		return &ValidationError{NodeID: n.ID, Reason: fmt.Sprintf("api method %q not allowed", n.APIMethod)}
	}
	if !allowedColors[n.Color] {
		return &ValidationError{NodeID: n.ID, Reason: fmt.Sprintf("color %q not allowed", n.Color)}
	}
	for i := range n.SubButtons {
		if err := validateNode(&n.SubButtons[i], seen); err != nil {
			return err
		}
	}
	return nil
}

// Find returns the node with the given id, searching the whole tree
func Find(roots []model.ButtonNode, id string) (*model.ButtonNode, bool) {
	for i := range roots {
		if roots[i].ID == id {
			n := clone(roots[i])
			return &n, true
		}
		if n, ok := Find(roots[i].SubButtons, id); ok {
			return n, true
		}
	}
	return nil, false
}

// Insert returns a new tree with node appended under parentID, or at the root
// when parentID is empty. Parenting a node under itself or one of its own
// descendants fails with ErrCycle.
func Insert(roots []model.ButtonNode, parentID string, node model.ButtonNode) ([]model.ButtonNode, error) {
	if parentID != "" && contains([]model.ButtonNode{node}, parentID) {
		return nil, fmt.Errorf("%w: %q cannot parent itself", ErrCycle, node.ID)
	}
	out := cloneAll(roots)
	if parentID == "" {
		return append(out, clone(node)), nil
	}
	if !attach(out, parentID, node) {
		return nil, fmt.Errorf("%w: parent %q", ErrNotFound, parentID)
	}
	return out, nil
}

// Patch carries optional field updates for a node. Nil pointers leave the
// current value untouched. SubButtons replacement goes through Insert/Remove
// instead so cycle checks always run.
type Patch struct {
	Label        *string
	ResponseText *string
	ActionType   *string
	MediaURL     *string
	MediaType    *string
	RedirectURL  *string
	APIURL       *string
	APIMethod    *string
	APIHeaders   map[string]string
	Pulse        *bool
	Color        *model.ButtonColor
}

// Update returns a new tree with patch merged into the node matching id
func Update(roots []model.ButtonNode, id string, patch Patch) ([]model.ButtonNode, error) {
	out := cloneAll(roots)
	if !apply(out, id, patch) {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	return out, nil
}

// Remove returns a new tree with the node matching id removed, wherever it occurs
func Remove(roots []model.ButtonNode, id string) ([]model.ButtonNode, error) {
	if !contains(roots, id) {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	return prune(roots, id), nil
}

func contains(roots []model.ButtonNode, id string) bool {
	for i := range roots {
		if roots[i].ID == id || contains(roots[i].SubButtons, id) {
			return true
		}
	}
	return false
}

func attach(roots []model.ButtonNode, parentID string, node model.ButtonNode) bool {
	for i := range roots {
		if roots[i].ID == parentID {
			roots[i].SubButtons = append(roots[i].SubButtons, clone(node))
			return true
		}
		if attach(roots[i].SubButtons, parentID, node) {
			return true
		}
	}
	return false
}

func apply(roots []model.ButtonNode, id string, p Patch) bool {
	for i := range roots {
		if roots[i].ID == id {
			n := &roots[i]
			if p.Label != nil {
				n.Label = *p.Label
			}
			if p.ResponseText != nil {
				n.ResponseText = *p.ResponseText
			}
			if p.ActionType != nil {
				n.ActionType = *p.ActionType
			}
			if p.MediaURL != nil {
				n.MediaURL = *p.MediaURL
			}
			if p.MediaType != nil {
				n.MediaType = *p.MediaType
			}
			if p.RedirectURL != nil {
				n.RedirectURL = *p.RedirectURL
			}
			if p.APIURL != nil {
				n.APIURL = *p.APIURL
			}
			if p.APIMethod != nil {
				n.APIMethod = *p.APIMethod
			}
			if p.APIHeaders != nil {
				n.APIHeaders = p.APIHeaders
			}
			if p.Pulse != nil {
				n.Pulse = *p.Pulse
			}
			if p.Color != nil {
				n.Color = *p.Color
			}
			return true
		}
		if apply(roots[i].SubButtons, id, p) {
			return true
		}
	}
	return false
}

func prune(roots []model.ButtonNode, id string) []model.ButtonNode {
	out := make([]model.ButtonNode, 0, len(roots))
	for i := range roots {
		if roots[i].ID == id {
			continue
		}
		n := clone(roots[i])
		n.SubButtons = prune(n.SubButtons, id)
		out = append(out, n)
	}
	return out
}

// clone copies a node and its subtree so callers never share backing arrays
func clone(n model.ButtonNode) model.ButtonNode {
	out := n
	if n.APIHeaders != nil {
		out.APIHeaders = make(map[string]string, len(n.APIHeaders))
		for k, v := range n.APIHeaders {
			out.APIHeaders[k] = v
		}
	}
	out.SubButtons = cloneAll(n.SubButtons)
	return out
}

func cloneAll(nodes []model.ButtonNode) []model.ButtonNode {
	if nodes == nil {
		return nil
	}
	out := make([]model.ButtonNode, len(nodes))
	for i := range nodes {
		out[i] = clone(nodes[i])
	}
	return out
}
