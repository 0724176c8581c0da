package reconcile

import "tse-market-sync/internal/domain"

// PartitionByClassification splits remote records into those whose type code
// exists in refs and those whose type code does not.
func PartitionByClassification(remote []*domain.RemoteInstrument, refs *domain.ReferenceSet) (known, unknown []*domain.RemoteInstrument) {
	for _, r := range remote {
		if refs.HasType(r.TypeID) {
			known = append(known, r)
		} else {
			unknown = append(unknown, r)
		}
	}
	return known, unknown
}

// PartitionByKey splits remote records into the first occurrence of each key
// and later repeats of an already seen key.
func PartitionByKey(remote []*domain.RemoteInstrument) (unique, repeated []*domain.RemoteInstrument) {
	seen := make(map[string]struct{}, len(remote))
	for _, r := range remote {
		if _, ok := seen[r.Key]; ok {
			repeated = append(repeated, r)
			continue
		}
		seen[r.Key] = struct{}{}
		unique = append(unique, r)
	}
	return unique, repeated
}

// PartitionBySearchResult splits search results into those whose short code is
// already known locally and those that are not.
func PartitionBySearchResult(items []*domain.SearchResultItem, local []*domain.Instrument) (known, unknown []*domain.SearchResultItem) {
	codes := make(map[string]struct{}, len(local))
	for _, inst := range local {
		codes[inst.ShortCode] = struct{}{}
	}
	for _, item := range items {
		if _, ok := codes[item.ShortCode]; ok {
			known = append(known, item)
		} else {
			unknown = append(unknown, item)
		}
	}
	return known, unknown
}
