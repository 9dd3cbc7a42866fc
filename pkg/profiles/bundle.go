package profiles

import "context"

// ResolveActiveProfiles expands an explicit profile-id list plus an
// optional bundle id into the single ordered, deduplicated list of
// profile ids an SOE run actually evaluates against — resolving a
// bundle at SOE time is equivalent to expanding its ids in place.
// Order is first-occurrence: explicit ids first, in the order given,
// then the bundle's ids, skipping anything already seen.
// A bundle is a pointer to ids, never a copy — nothing here touches
// profile content.
func ResolveActiveProfiles(ctx context.Context, reg Registry, explicitIDs []string, bundleID string) ([]string, error) {
	seen := make(map[string]bool, len(explicitIDs))
	ordered := make([]string, 0, len(explicitIDs))

	for _, id := range explicitIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		ordered = append(ordered, id)
	}

	if bundleID != "" {
		b, err := reg.GetBundle(ctx, bundleID)
		if err != nil {
			return nil, err
		}
		for _, id := range b.ProfileIDs {
			if seen[id] {
				continue
			}
			seen[id] = true
			ordered = append(ordered, id)
		}
	}

	return ordered, nil
}

// LoadGraph fetches every profile named in ids, plus their transitive
// ancestry, keyed by profile_id — the shape ValidateGraph and the SOE
// resolver need to walk parent chains without refetching.
func LoadGraph(ctx context.Context, reg Registry, ids []string) (map[string]*StandardsProfile, error) {
	all := make(map[string]*StandardsProfile)

	var load func(id string) error
	load = func(id string) error {
		if _, ok := all[id]; ok {
			return nil
		}
		p, err := reg.GetProfile(ctx, id)
		if err != nil {
			return err
		}
		all[id] = p
		for _, parentID := range p.ParentProfileIDs {
			if err := load(parentID); err != nil {
				return err
			}
		}
		return nil
	}

	for _, id := range ids {
		if err := load(id); err != nil {
			return nil, err
		}
	}
	return all, nil
}

// EffectivePacks walks a resolved profile (and, per its override_mode,
// its ancestry) to produce the ordered set of pack ids it contributes
// to an SOE run. STRICT and ADDITIVE both include ancestor packs ahead
// of the profile's own (parents evaluate first, lowest layer first);
// REPLACE drops ancestor packs entirely in favor of the profile's own
// default_packs.
func EffectivePacks(all map[string]*StandardsProfile, profileID string) []string {
	p, ok := all[profileID]
	if !ok {
		return nil
	}

	seen := make(map[string]bool)
	var packs []string
	appendUnique := func(ids []string) {
		for _, id := range ids {
			if seen[id] {
				continue
			}
			seen[id] = true
			packs = append(packs, id)
		}
	}

	if p.OverrideMode != OverrideReplace {
		for _, parentID := range p.ParentProfileIDs {
			appendUnique(EffectivePacks(all, parentID))
		}
	}
	appendUnique(p.DefaultPacks)
	return packs
}
