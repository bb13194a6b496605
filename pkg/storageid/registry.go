package storageid

import "sort"

// groupIPKey and ipPortKey are the composite keys of the (group, ip) and
// (ip, port) indexes described in spec.md §4.1.
type groupIPKey struct {
	group string
	ip    string
}

type ipPortKey struct {
	ip   string
	port uint16
}

// Registry is the immutable, load-once identity registry: a by-id index
// plus the two composite indexes, all binary-searchable, per spec.md §3
// and §4.1.
type Registry struct {
	byID      []Identity // sorted by ID
	byGroupIP []groupIPIndexEntry
	byIPPort  []ipPortIndexEntry
}

type groupIPIndexEntry struct {
	key groupIPKey
	id  uint32
}

type ipPortIndexEntry struct {
	key ipPortKey
	id  uint32
}

// Load parses text (the contents of the storage_ids table) and builds a
// Registry, enforcing spec.md §4.1's post-parse checks: sort by id, no
// duplicate id, no duplicate (ip, port), and the port column must be
// either present on every record or absent on every record.
func Load(text string) (*Registry, error) {
	ids, err := parseIdentities(text)
	if err != nil {
		return nil, err
	}
	return build(ids)
}

func build(ids []Identity) (*Registry, error) {
	sort.Slice(ids, func(i, j int) bool { return ids[i].ID < ids[j].ID })

	for i := 1; i < len(ids); i++ {
		if ids[i].ID == ids[i-1].ID {
			return nil, ErrDuplicateID
		}
	}

	hasPort := 0
	for _, id := range ids {
		if id.Port > 0 {
			hasPort++
		}
	}
	if hasPort != 0 && hasPort != len(ids) {
		return nil, ErrInconsistentPort
	}

	r := &Registry{byID: ids}

	for _, id := range ids {
		for _, addr := range id.Addrs {
			r.byGroupIP = append(r.byGroupIP, groupIPIndexEntry{groupIPKey{id.Group, addr.IP}, id.ID})
			r.byIPPort = append(r.byIPPort, ipPortIndexEntry{ipPortKey{addr.IP, id.Port}, id.ID})
		}
	}

	sort.Slice(r.byGroupIP, func(i, j int) bool { return lessGroupIP(r.byGroupIP[i].key, r.byGroupIP[j].key) })
	for i := 1; i < len(r.byGroupIP); i++ {
		if r.byGroupIP[i].key == r.byGroupIP[i-1].key {
			return nil, Error.New("duplicate (group, ip) %+v", r.byGroupIP[i].key)
		}
	}

	sort.Slice(r.byIPPort, func(i, j int) bool { return lessIPPort(r.byIPPort[i].key, r.byIPPort[j].key) })
	for i := 1; i < len(r.byIPPort); i++ {
		if r.byIPPort[i].key == r.byIPPort[i-1].key {
			return nil, ErrDuplicatePort
		}
	}

	return r, nil
}

func lessGroupIP(a, b groupIPKey) bool {
	if a.group != b.group {
		return a.group < b.group
	}
	return a.ip < b.ip
}

func lessIPPort(a, b ipPortKey) bool {
	if a.ip != b.ip {
		return a.ip < b.ip
	}
	return a.port < b.port
}

// GetByID returns the Identity with the given id.
func (r *Registry) GetByID(id uint32) (Identity, bool) {
	i := sort.Search(len(r.byID), func(i int) bool { return r.byID[i].ID >= id })
	if i < len(r.byID) && r.byID[i].ID == id {
		return r.byID[i], true
	}
	return Identity{}, false
}

// GetIDByGroupIP resolves (group, ip) to a logical id.
func (r *Registry) GetIDByGroupIP(group, ip string) (uint32, bool) {
	key := groupIPKey{group, ip}
	i := sort.Search(len(r.byGroupIP), func(i int) bool { return !lessGroupIP(r.byGroupIP[i].key, key) })
	if i < len(r.byGroupIP) && r.byGroupIP[i].key == key {
		return r.byGroupIP[i].id, true
	}
	return 0, false
}

// GetIDByIPPort resolves (ip, port) to a logical id, falling back to
// (ip, 0) when there is no exact match, per spec.md §4.1.
func (r *Registry) GetIDByIPPort(ip string, port uint16) (uint32, bool) {
	if id, ok := r.lookupIPPort(ip, port); ok {
		return id, true
	}
	if port != 0 {
		return r.lookupIPPort(ip, 0)
	}
	return 0, false
}

func (r *Registry) lookupIPPort(ip string, port uint16) (uint32, bool) {
	key := ipPortKey{ip, port}
	i := sort.Search(len(r.byIPPort), func(i int) bool { return !lessIPPort(r.byIPPort[i].key, key) })
	if i < len(r.byIPPort) && r.byIPPort[i].key == key {
		return r.byIPPort[i].id, true
	}
	return 0, false
}

// Len returns the number of distinct identities in the registry.
func (r *Registry) Len() int { return len(r.byID) }

// All returns every identity, sorted by id. The returned slice is
// owned by the registry and must not be modified.
func (r *Registry) All() []Identity { return r.byID }
