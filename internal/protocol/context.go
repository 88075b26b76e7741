package protocol

// BlockState is one entry of the flat block-state registry.
type BlockState struct {
	ID         int32
	Name       string
	Properties map[string]string
}

type Item struct {
	ID   int32
	Name string
}

type EntityType struct {
	ID   int32
	Name string
}

type Biome struct {
	ID   int32
	Name string
}

// Resolver maps numeric wire ids to registry entries. It is injected at
// connection setup and must return *UnknownIDError for ids it does not know.
type Resolver interface {
	ResolveBlock(id int32) (BlockState, error)
	ResolveItem(id int32) (Item, error)
	ResolveEntityType(id int32) (EntityType, error)
	ResolveBiome(id int32) (Biome, error)
	// ResolveLegacyBlock maps a pre-flattening id<<4|meta pair to a state id.
	ResolveLegacyBlock(idMeta int32) (int32, error)
}

// Context is what a play-state decode needs beyond the bytes themselves.
type Context struct {
	Version  Version
	Resolver Resolver
	// MaxStringLength overrides DefaultMaxStringLength when positive.
	MaxStringLength int
}

func (c *Context) maxString() int {
	if c == nil || c.MaxStringLength <= 0 {
		return DefaultMaxStringLength
	}
	return c.MaxStringLength
}

// PassthroughResolver accepts every id and returns entries that only carry
// the id. Legacy pairs map to themselves. Useful for tooling that dumps raw
// traffic without registry data.
type PassthroughResolver struct{}

func (PassthroughResolver) ResolveBlock(id int32) (BlockState, error) {
	if id < 0 {
		return BlockState{}, &UnknownIDError{Registry: "block", ID: id}
	}
	return BlockState{ID: id}, nil
}

func (PassthroughResolver) ResolveItem(id int32) (Item, error) {
	if id < 0 {
		return Item{}, &UnknownIDError{Registry: "item", ID: id}
	}
	return Item{ID: id}, nil
}

func (PassthroughResolver) ResolveEntityType(id int32) (EntityType, error) {
	if id < 0 {
		return EntityType{}, &UnknownIDError{Registry: "entity_type", ID: id}
	}
	return EntityType{ID: id}, nil
}

func (PassthroughResolver) ResolveBiome(id int32) (Biome, error) {
	if id < 0 {
		return Biome{}, &UnknownIDError{Registry: "biome", ID: id}
	}
	return Biome{ID: id}, nil
}

func (PassthroughResolver) ResolveLegacyBlock(idMeta int32) (int32, error) {
	if idMeta < 0 {
		return 0, &UnknownIDError{Registry: "legacy_block", ID: idMeta}
	}
	return idMeta, nil
}
