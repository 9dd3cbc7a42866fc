package profiles

import "fmt"

// ValidateGraph checks the type constraints and acyclicity of a profile
// graph: DOMAIN's parents must be BASE, CUSTOMER_OVERRIDE's parents
// must be DOMAIN, and no profile may (transitively) depend on itself.
// Cycle detection uses a standard DFS recursion-stack technique.
func ValidateGraph(all map[string]*StandardsProfile) error {
	for id, p := range all {
		for _, parentID := range p.ParentProfileIDs {
			parent, ok := all[parentID]
			if !ok {
				return fmt.Errorf("profiles: %s references unknown parent %s", id, parentID)
			}
			if err := validateTypeConstraint(p, parent); err != nil {
				return err
			}
		}
	}

	visited := make(map[string]bool)
	inStack := make(map[string]bool)

	var visit func(id string) error
	visit = func(id string) error {
		visited[id] = true
		inStack[id] = true
		defer func() { inStack[id] = false }()

		p, ok := all[id]
		if !ok {
			return nil
		}
		for _, parentID := range p.ParentProfileIDs {
			if inStack[parentID] {
				return fmt.Errorf("profiles: cycle detected involving %s -> %s", id, parentID)
			}
			if !visited[parentID] {
				if err := visit(parentID); err != nil {
					return err
				}
			}
		}
		return nil
	}

	for id := range all {
		if !visited[id] {
			if err := visit(id); err != nil {
				return err
			}
		}
	}
	return nil
}

func validateTypeConstraint(child, parent *StandardsProfile) error {
	switch child.ProfileType {
	case TypeDomain:
		if parent.ProfileType != TypeBase {
			return fmt.Errorf("profiles: DOMAIN profile %s must have BASE parents, got %s (%s)",
				child.ProfileID, parent.ProfileType, parent.ProfileID)
		}
	case TypeCustomerOverride:
		if parent.ProfileType != TypeDomain {
			return fmt.Errorf("profiles: CUSTOMER_OVERRIDE profile %s must have DOMAIN parents, got %s (%s)",
				child.ProfileID, parent.ProfileType, parent.ProfileID)
		}
	case TypeBase:
		if len(child.ParentProfileIDs) > 0 {
			return fmt.Errorf("profiles: BASE profile %s must not declare parents", child.ProfileID)
		}
	}
	return nil
}
