package cache

// dirtySet tracks fields modified since their last confirmed write.
// Each mark stamps the field with a fresh generation so a flush can tell
// whether the field changed again while its write was in flight.
type dirtySet[F comparable] struct {
	gen    uint64
	fields map[F]uint64
}

func (d *dirtySet[F]) mark(fs ...F) {
	if d.fields == nil {
		d.fields = make(map[F]uint64, len(fs))
	}
	d.gen++
	for _, f := range fs {
		d.fields[f] = d.gen
	}
}

// snapshot returns the dirty fields in order and their generations.
func (d *dirtySet[F]) snapshot(order []F) ([]F, map[F]uint64) {
	if len(d.fields) == 0 {
		return nil, nil
	}
	fields := make([]F, 0, len(d.fields))
	snap := make(map[F]uint64, len(d.fields))
	for _, f := range order {
		if g, ok := d.fields[f]; ok {
			fields = append(fields, f)
			snap[f] = g
		}
	}
	return fields, snap
}

// clear drops fields whose generation is unchanged since snap was taken.
func (d *dirtySet[F]) clear(snap map[F]uint64) {
	for f, g := range snap {
		if d.fields[f] == g {
			delete(d.fields, f)
		}
	}
}

func (d *dirtySet[F]) has(f F) bool {
	_, ok := d.fields[f]
	return ok
}

func (d *dirtySet[F]) len() int {
	return len(d.fields)
}

// generation is the stamp of the latest mark.
func (d *dirtySet[F]) generation() uint64 {
	return d.gen
}

// markedAfter reports whether f is dirty from a mark later than g.
func (d *dirtySet[F]) markedAfter(f F, g uint64) bool {
	fg, ok := d.fields[f]
	return ok && fg > g
}

// forget drops fields whose latest mark is at or before g.
func (d *dirtySet[F]) forget(g uint64) {
	for f, fg := range d.fields {
		if fg <= g {
			delete(d.fields, f)
		}
	}
}
