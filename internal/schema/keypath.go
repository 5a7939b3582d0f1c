package schema

import (
	"fmt"
	"strings"

	"github.com/rtrevinnoc/siliconcompiler/pkg/errors"
)

const (
	// Wildcard is the reserved segment naming a template child. A parameter
	// or sub-store declared under it is instantiated for any concrete
	// segment on first write.
	Wildcard = "default"

	// GlobalKey is the sentinel step and index used to store values that
	// apply to every node.
	GlobalKey = "global"
)

// Keypath addresses a parameter inside a Store as an ordered list of
// segments.
type Keypath []string

// Key is a convenience constructor for a Keypath.
func Key(segments ...string) Keypath {
	return Keypath(segments)
}

// String renders the keypath in manifest form, e.g. "[option,flow]".
func (k Keypath) String() string {
	return "[" + strings.Join(k, ",") + "]"
}

// Clone returns an independent copy of the keypath.
func (k Keypath) Clone() Keypath {
	if k == nil {
		return nil
	}
	out := make(Keypath, len(k))
	copy(out, k)
	return out
}

// Equal reports whether two keypaths have identical segments.
func (k Keypath) Equal(other Keypath) bool {
	if len(k) != len(other) {
		return false
	}
	for i := range k {
		if k[i] != other[i] {
			return false
		}
	}
	return true
}

func (k Keypath) validate() error {
	if len(k) == 0 {
		return errors.NewKeypathError(k.String(), "is empty", nil)
	}
	for _, segment := range k {
		if err := checkSegment(segment); err != nil {
			return errors.NewKeypathError(k.String(), fmt.Sprintf("contains invalid segment %q", segment), err)
		}
	}
	return nil
}

func checkSegment(segment string) error {
	if segment == "" {
		return fmt.Errorf("segment is empty")
	}
	if strings.ContainsAny(segment, ", \t\n") {
		return fmt.Errorf("segment contains reserved characters")
	}
	return nil
}
