package authz

import (
	"fmt"
)

// expandEffectiveRoles walks the parent chain of each held role, collecting
// the full effective role set. The walk is iterative with a visited set and
// a depth bound, so even corrupt data cannot loop or recurse unboundedly.
func expandEffectiveRoles(held []int64, all map[int64]*Role) ([]int64, error) {
	effective := make([]int64, 0, len(held))
	visited := make(map[int64]struct{}, len(held))

	for _, id := range held {
		current, ok := all[id]
		if !ok {
			// Assignment points at a deleted role; skip rather than fail
			// the whole evaluation.
			continue
		}
		for depth := 0; current != nil; depth++ {
			if depth > MaxRoleDepth {
				return nil, fmt.Errorf("role %d: hierarchy deeper than %d levels", id, MaxRoleDepth)
			}
			if _, seen := visited[current.ID]; seen {
				break
			}
			visited[current.ID] = struct{}{}
			effective = append(effective, current.ID)

			if current.ParentID == nil {
				break
			}
			current = all[*current.ParentID]
		}
	}

	return effective, nil
}

// wouldCreateCycle reports whether setting roleID's parent to parentID would
// close a loop in the inheritance chain, or push its depth past the bound.
// Called before persistence so a cycle can never be written.
func wouldCreateCycle(roleID int64, parentID int64, all map[int64]*Role) (bool, error) {
	if roleID == parentID {
		return true, nil
	}

	current, ok := all[parentID]
	if !ok {
		return false, fmt.Errorf("parent role %d not found", parentID)
	}

	for depth := 1; ; depth++ {
		if current.ID == roleID {
			return true, nil
		}
		if current.ParentID == nil {
			return false, nil
		}
		if depth >= MaxRoleDepth {
			return false, fmt.Errorf("parent chain of role %d exceeds %d levels", parentID, MaxRoleDepth)
		}
		next, ok := all[*current.ParentID]
		if !ok {
			return false, fmt.Errorf("role %d references missing parent %d", current.ID, *current.ParentID)
		}
		current = next
	}
}
