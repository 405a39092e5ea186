package hub

import (
	"fmt"
	"maps"
	"slices"

	"github.com/nerrad567/poweredup/internal/lwp3"
)

// Range is a mode's numeric range in one scale.
type Range struct {
	Min float32 `json:"min"`
	Max float32 `json:"max"`
}

// ModeInfo accumulates the per-mode metadata reported during negotiation.
type ModeInfo struct {
	Name           string           `json:"name"`
	Raw            Range            `json:"raw"`
	Pct            Range            `json:"pct"`
	SI             Range            `json:"si"`
	Symbol         string           `json:"symbol"`
	Mapping        lwp3.Mapping     `json:"mapping"`
	MotorBias      uint8            `json:"motor_bias"`
	CapabilityBits [6]byte          `json:"capability_bits"`
	Format         lwp3.ValueFormat `json:"format"`
	HasFormat      bool             `json:"has_format"`
}

// PortRecord describes the device attached to one port.
//
// Records returned by Registry and Session are deep copies; mutating them
// has no effect on session state.
type PortRecord struct {
	Port        uint8        `json:"port"`
	IOType      lwp3.IOType  `json:"io_type"`
	HardwareRev lwp3.Version `json:"hardware_rev"`
	SoftwareRev lwp3.Version `json:"software_rev"`

	// Virtual records combine two physical ports listed in Members.
	Virtual bool     `json:"virtual"`
	Members [2]uint8 `json:"members,omitempty"`

	Capabilities lwp3.Capabilities   `json:"capabilities"`
	ModeCount    uint8               `json:"mode_count"`
	InputModes   uint16              `json:"input_modes"`
	OutputModes  uint16              `json:"output_modes"`
	Combinations []uint16            `json:"combinations,omitempty"`
	Modes        map[uint8]*ModeInfo `json:"modes"`

	// Input is the last input format the hub confirmed, nil until then.
	Input *lwp3.InputFormat `json:"input,omitempty"`

	// Ready is true once every negotiation reply has been applied.
	Ready bool `json:"ready"`
}

// Kind returns the command family of the attached device.
func (p PortRecord) Kind() lwp3.Family { return p.IOType.Family() }

// Mode returns the metadata for a mode, if any has arrived.
func (p PortRecord) Mode(mode uint8) (ModeInfo, bool) {
	m, ok := p.Modes[mode]
	if !ok {
		return ModeInfo{}, false
	}
	return *m, true
}

func (p PortRecord) clone() PortRecord {
	c := p
	c.Combinations = slices.Clone(p.Combinations)
	c.Modes = make(map[uint8]*ModeInfo, len(p.Modes))
	for k, m := range p.Modes {
		mc := *m
		c.Modes[k] = &mc
	}
	if p.Input != nil {
		in := *p.Input
		c.Input = &in
	}
	return c
}

type replyKey struct {
	mode uint8
	info lwp3.ModeInformationType
}

// entry is a record plus its negotiation bookkeeping.
type entry struct {
	rec PortRecord

	replies      map[replyKey]struct{}
	modeInfoSeen bool
	combosSeen   bool

	ready   chan struct{}
	removed chan struct{}
}

func (e *entry) complete() bool {
	if e.rec.Virtual {
		return true
	}
	if !e.modeInfoSeen {
		return false
	}
	if e.rec.Capabilities.Has(lwp3.CapLogicalCombinable) && !e.combosSeen {
		return false
	}
	want := int(e.rec.ModeCount) * len(lwp3.NegotiationOrder)
	got := 0
	for k := range e.replies {
		if k.mode < e.rec.ModeCount && slices.Contains(lwp3.NegotiationOrder[:], k.info) {
			got++
		}
	}
	return got >= want
}

// Registry holds the port records of one hub.
//
// Registry is not safe for concurrent use; Session serialises access under
// its own lock. Every mutator on a missing port returns ErrNotFound and
// leaves the registry unchanged.
type Registry struct {
	ports map[uint8]*entry

	// OnReady, when set, is called once per record as it becomes ready.
	OnReady func(rec PortRecord)
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{ports: make(map[uint8]*entry)}
}

func newEntry(rec PortRecord) *entry {
	if rec.Modes == nil {
		rec.Modes = make(map[uint8]*ModeInfo)
	}
	return &entry{
		rec:     rec,
		replies: make(map[replyKey]struct{}),
		ready:   make(chan struct{}),
		removed: make(chan struct{}),
	}
}

func (r *Registry) insert(e *entry) {
	if old, ok := r.ports[e.rec.Port]; ok {
		close(old.removed)
	}
	r.ports[e.rec.Port] = e
	r.settle(e)
}

// Attach creates an empty record for a newly attached device, replacing any
// record already held for the port.
func (r *Registry) Attach(port uint8, t lwp3.IOType, hw, sw lwp3.Version) {
	r.insert(newEntry(PortRecord{Port: port, IOType: t, HardwareRev: hw, SoftwareRev: sw}))
}

// AttachVirtual creates a composite record for a virtual port combining
// portA and portB. Both members must already be attached; their records are
// kept. Virtual records need no negotiation and are ready immediately.
func (r *Registry) AttachVirtual(port uint8, t lwp3.IOType, portA, portB uint8) error {
	for _, p := range [...]uint8{portA, portB} {
		if _, ok := r.ports[p]; !ok {
			return fmt.Errorf("%w: virtual member %d", ErrNotFound, p)
		}
	}
	r.insert(newEntry(PortRecord{Port: port, IOType: t, Virtual: true, Members: [2]uint8{portA, portB}}))
	return nil
}

// Detach removes the record for a port, together with any virtual port
// that uses it as a member. The removed virtual ports are returned in
// ascending order.
func (r *Registry) Detach(port uint8) ([]uint8, error) {
	e, ok := r.ports[port]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrNotFound, port)
	}
	delete(r.ports, port)
	close(e.removed)

	var composites []uint8
	for p, v := range r.ports {
		if v.rec.Virtual && (v.rec.Members[0] == port || v.rec.Members[1] == port) {
			delete(r.ports, p)
			close(v.removed)
			composites = append(composites, p)
		}
	}
	slices.Sort(composites)
	return composites, nil
}

func (r *Registry) get(port uint8) (*entry, error) {
	e, ok := r.ports[port]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrNotFound, port)
	}
	return e, nil
}

// settle fires readiness once all expected replies are in.
func (r *Registry) settle(e *entry) {
	if e.rec.Ready || !e.complete() {
		return
	}
	e.rec.Ready = true
	close(e.ready)
	if r.OnReady != nil {
		r.OnReady(e.rec.clone())
	}
}

// SetModeInfo stores the port's mode count, capabilities and mode bitmasks.
func (r *Registry) SetModeInfo(port uint8, caps lwp3.Capabilities, modeCount uint8, inputs, outputs uint16) error {
	e, err := r.get(port)
	if err != nil {
		return err
	}
	e.rec.Capabilities = caps
	e.rec.ModeCount = modeCount
	e.rec.InputModes = inputs
	e.rec.OutputModes = outputs
	e.modeInfoSeen = true
	r.settle(e)
	return nil
}

// SetCombinations stores the port's valid mode combinations.
func (r *Registry) SetCombinations(port uint8, combos []uint16) error {
	e, err := r.get(port)
	if err != nil {
		return err
	}
	e.rec.Combinations = slices.Clone(combos)
	e.combosSeen = true
	r.settle(e)
	return nil
}

// update applies fn to a mode slot and records that the reply arrived.
func (r *Registry) update(port, mode uint8, info lwp3.ModeInformationType, fn func(*ModeInfo)) error {
	e, err := r.get(port)
	if err != nil {
		return err
	}
	m, ok := e.rec.Modes[mode]
	if !ok {
		m = &ModeInfo{}
		e.rec.Modes[mode] = m
	}
	fn(m)
	e.replies[replyKey{mode: mode, info: info}] = struct{}{}
	r.settle(e)
	return nil
}

// SetModeName stores a mode's display name.
func (r *Registry) SetModeName(port, mode uint8, name string) error {
	return r.update(port, mode, lwp3.ModeInfoName, func(m *ModeInfo) { m.Name = name })
}

// SetModeRaw stores a mode's raw range.
func (r *Registry) SetModeRaw(port, mode uint8, rng Range) error {
	return r.update(port, mode, lwp3.ModeInfoRaw, func(m *ModeInfo) { m.Raw = rng })
}

// SetModePct stores a mode's percent range.
func (r *Registry) SetModePct(port, mode uint8, rng Range) error {
	return r.update(port, mode, lwp3.ModeInfoPct, func(m *ModeInfo) { m.Pct = rng })
}

// SetModeSI stores a mode's SI range.
func (r *Registry) SetModeSI(port, mode uint8, rng Range) error {
	return r.update(port, mode, lwp3.ModeInfoSI, func(m *ModeInfo) { m.SI = rng })
}

// SetModeSymbol stores a mode's unit symbol.
func (r *Registry) SetModeSymbol(port, mode uint8, symbol string) error {
	return r.update(port, mode, lwp3.ModeInfoSymbol, func(m *ModeInfo) { m.Symbol = symbol })
}

// SetModeMapping stores a mode's input/output mapping flags.
func (r *Registry) SetModeMapping(port, mode uint8, mapping lwp3.Mapping) error {
	return r.update(port, mode, lwp3.ModeInfoMapping, func(m *ModeInfo) { m.Mapping = mapping })
}

// SetModeMotorBias stores a mode's motor bias.
func (r *Registry) SetModeMotorBias(port, mode uint8, bias uint8) error {
	return r.update(port, mode, lwp3.ModeInfoMotorBias, func(m *ModeInfo) { m.MotorBias = bias })
}

// SetModeCapabilities stores a mode's sensor capability bits.
func (r *Registry) SetModeCapabilities(port, mode uint8, bits [6]byte) error {
	return r.update(port, mode, lwp3.ModeInfoCapabilityBits, func(m *ModeInfo) { m.CapabilityBits = bits })
}

// SetModeValueFormat stores a mode's value format.
func (r *Registry) SetModeValueFormat(port, mode uint8, vf lwp3.ValueFormat) error {
	return r.update(port, mode, lwp3.ModeInfoValueFormat, func(m *ModeInfo) {
		m.Format = vf
		m.HasFormat = true
	})
}

// ApplyModeInformation stores any per-mode reply in its slot.
func (r *Registry) ApplyModeInformation(m *lwp3.PortModeInformation) error {
	switch m.Info {
	case lwp3.ModeInfoName:
		return r.SetModeName(m.Port, m.Mode, m.Name)
	case lwp3.ModeInfoRaw:
		return r.SetModeRaw(m.Port, m.Mode, Range{Min: m.Min, Max: m.Max})
	case lwp3.ModeInfoPct:
		return r.SetModePct(m.Port, m.Mode, Range{Min: m.Min, Max: m.Max})
	case lwp3.ModeInfoSI:
		return r.SetModeSI(m.Port, m.Mode, Range{Min: m.Min, Max: m.Max})
	case lwp3.ModeInfoSymbol:
		return r.SetModeSymbol(m.Port, m.Mode, m.Symbol)
	case lwp3.ModeInfoMapping:
		return r.SetModeMapping(m.Port, m.Mode, m.Mapping)
	case lwp3.ModeInfoMotorBias:
		return r.SetModeMotorBias(m.Port, m.Mode, m.MotorBias)
	case lwp3.ModeInfoCapabilityBits:
		return r.SetModeCapabilities(m.Port, m.Mode, m.CapabilityBits)
	case lwp3.ModeInfoValueFormat:
		return r.SetModeValueFormat(m.Port, m.Mode, m.Format)
	default:
		return fmt.Errorf("hub: unhandled mode information %s", m.Info)
	}
}

// SetInputFormat records the input format the hub confirmed for a port.
func (r *Registry) SetInputFormat(f lwp3.InputFormat) error {
	e, err := r.get(f.Port)
	if err != nil {
		return err
	}
	e.rec.Input = &f
	return nil
}

// Get returns a copy of the record for a port.
func (r *Registry) Get(port uint8) (PortRecord, bool) {
	e, ok := r.ports[port]
	if !ok {
		return PortRecord{}, false
	}
	return e.rec.clone(), true
}

// Snapshot returns copies of every record, ordered by port id.
func (r *Registry) Snapshot() []PortRecord {
	out := make([]PortRecord, 0, len(r.ports))
	for _, port := range slices.Sorted(maps.Keys(r.ports)) {
		out = append(out, r.ports[port].rec.clone())
	}
	return out
}

// PortsOfKind returns the ids of ports holding a device kind, ascending.
func (r *Registry) PortsOfKind(t lwp3.IOType) []uint8 {
	var out []uint8
	for _, port := range slices.Sorted(maps.Keys(r.ports)) {
		if r.ports[port].rec.IOType == t {
			out = append(out, port)
		}
	}
	return out
}

// Len returns the number of records.
func (r *Registry) Len() int { return len(r.ports) }

// valueFormat returns the recorded value format for a port mode.
func (r *Registry) valueFormat(port, mode uint8) (lwp3.ValueFormat, bool) {
	e, ok := r.ports[port]
	if !ok {
		return lwp3.ValueFormat{}, false
	}
	m, ok := e.rec.Modes[mode]
	if !ok || !m.HasFormat {
		return lwp3.ValueFormat{}, false
	}
	return m.Format, true
}

// waiters returns the ready and removed channels of a record.
func (r *Registry) waiters(port uint8) (ready, removed <-chan struct{}, err error) {
	e, err := r.get(port)
	if err != nil {
		return nil, nil, err
	}
	return e.ready, e.removed, nil
}
