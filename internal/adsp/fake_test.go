package adsp_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/glizzus/adsp-host/internal/adsp"
)

// fakeInstance implements Instance and every stage interface. Calls are
// counted per method; panics and codes are looked up by method name.
type fakeInstance struct {
	mu      sync.Mutex
	caps    adsp.Capabilities
	name    string
	version string
	panics  map[string]any
	codes   map[string]adsp.ErrorCode
	frames  map[string]int
	calls   map[string]int

	onCreate func(cb adsp.Callbacks)
}

func newFakeInstance() *fakeInstance {
	return &fakeInstance{
		caps: adsp.Capabilities{
			SupportsInputProcess:   true,
			SupportsInputResample:  true,
			SupportsPreProcess:     true,
			SupportsMasterProcess:  true,
			SupportsPostProcess:    true,
			SupportsOutputResample: true,
		},
		name:    "Fake DSP",
		version: "1.2.3",
		panics:  make(map[string]any),
		codes:   make(map[string]adsp.ErrorCode),
		frames:  make(map[string]int),
		calls:   make(map[string]int),
	}
}

func (f *fakeInstance) hit(op string) {
	f.mu.Lock()
	f.calls[op]++
	v, ok := f.panics[op]
	f.mu.Unlock()
	if ok {
		panic(v)
	}
}

func (f *fakeInstance) setPanic(op string, v any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.panics[op] = v
}

func (f *fakeInstance) setCode(op string, c adsp.ErrorCode) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.codes[op] = c
}

func (f *fakeInstance) code(op string) adsp.ErrorCode {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.codes[op]
}

func (f *fakeInstance) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeInstance) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

// processed returns the configured frame count for op, or samples.
func (f *fakeInstance) processed(op string, samples int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if n, ok := f.frames[op]; ok {
		return n
	}
	return samples
}

func (f *fakeInstance) Capabilities() adsp.Capabilities { f.hit("GetCapabilities"); return f.caps }
func (f *fakeInstance) DSPName() string                  { f.hit("GetDSPName"); return f.name }
func (f *fakeInstance) DSPVersion() string               { f.hit("GetDSPVersion"); return f.version }

func (f *fakeInstance) MenuHook(adsp.MenuHook, adsp.MenuHookData) adsp.ErrorCode {
	f.hit("MenuHook")
	return f.code("MenuHook")
}

func (f *fakeInstance) StreamCreate(*adsp.Settings, *adsp.StreamProperties, adsp.StreamHandle) adsp.ErrorCode {
	f.hit("StreamCreate")
	return f.code("StreamCreate")
}

func (f *fakeInstance) StreamDestroy(adsp.StreamHandle) adsp.ErrorCode {
	f.hit("StreamDestroy")
	return f.code("StreamDestroy")
}

func (f *fakeInstance) StreamIsModeSupported(adsp.StreamHandle, adsp.ModeType, uint, int) adsp.ErrorCode {
	f.hit("StreamIsModeSupported")
	return f.code("StreamIsModeSupported")
}

func (f *fakeInstance) StreamInitialize(adsp.StreamHandle, *adsp.Settings) adsp.ErrorCode {
	f.hit("StreamInitialize")
	return f.code("StreamInitialize")
}

func (f *fakeInstance) Close() { f.hit("DestroyInstance") }

func (f *fakeInstance) InputProcess(_ adsp.StreamHandle, _ [][]float32, _ int) bool {
	f.hit("InputProcess")
	return true
}

func (f *fakeInstance) InputResampleProcessNeededSamplesize(adsp.StreamHandle) int {
	f.hit("InputResampleProcessNeededSamplesize")
	return 512
}

func (f *fakeInstance) InputResampleProcess(_ adsp.StreamHandle, _, _ [][]float32, samples int) int {
	f.hit("InputResampleProcess")
	return f.processed("InputResampleProcess", samples)
}

func (f *fakeInstance) InputResampleSampleRate(adsp.StreamHandle) int {
	f.hit("InputResampleSampleRate")
	return 48000
}

func (f *fakeInstance) InputResampleGetDelay(adsp.StreamHandle) float32 {
	f.hit("InputResampleGetDelay")
	return 0.01
}

func (f *fakeInstance) PreProcessNeededSamplesize(adsp.StreamHandle, uint) int {
	f.hit("PreProcessNeededSamplesize")
	return 0
}

func (f *fakeInstance) PreProcessGetDelay(adsp.StreamHandle, uint) float32 {
	f.hit("PreProcessGetDelay")
	return 0
}

func (f *fakeInstance) PreProcess(_ adsp.StreamHandle, _ uint, _, _ [][]float32, samples int) int {
	f.hit("PreProcess")
	return f.processed("PreProcess", samples)
}

func (f *fakeInstance) MasterProcessSetMode(adsp.StreamHandle, adsp.StreamType, uint, int) adsp.ErrorCode {
	f.hit("MasterProcessSetMode")
	return f.code("MasterProcessSetMode")
}

func (f *fakeInstance) MasterProcessNeededSamplesize(adsp.StreamHandle) int {
	f.hit("MasterProcessNeededSamplesize")
	return 0
}

func (f *fakeInstance) MasterProcessGetDelay(adsp.StreamHandle) float32 {
	f.hit("MasterProcessGetDelay")
	return 0.02
}

func (f *fakeInstance) MasterProcessGetOutChannels(adsp.StreamHandle) (int, adsp.ChannelFlags) {
	f.hit("MasterProcessGetOutChannels")
	return 2, adsp.ChannelFL | adsp.ChannelFR
}

func (f *fakeInstance) MasterProcess(_ adsp.StreamHandle, _, _ [][]float32, samples int) int {
	f.hit("MasterProcess")
	return f.processed("MasterProcess", samples)
}

func (f *fakeInstance) MasterProcessGetStreamInfoString(adsp.StreamHandle) string {
	f.hit("MasterProcessGetStreamInfoString")
	return "fake master"
}

func (f *fakeInstance) PostProcessNeededSamplesize(adsp.StreamHandle, uint) int {
	f.hit("PostProcessNeededSamplesize")
	return 0
}

func (f *fakeInstance) PostProcessGetDelay(adsp.StreamHandle, uint) float32 {
	f.hit("PostProcessGetDelay")
	return 0
}

func (f *fakeInstance) PostProcess(_ adsp.StreamHandle, _ uint, _, _ [][]float32, samples int) int {
	f.hit("PostProcess")
	return f.processed("PostProcess", samples)
}

func (f *fakeInstance) OutputResampleProcessNeededSamplesize(adsp.StreamHandle) int {
	f.hit("OutputResampleProcessNeededSamplesize")
	return 0
}

func (f *fakeInstance) OutputResampleProcess(_ adsp.StreamHandle, _, _ [][]float32, samples int) int {
	f.hit("OutputResampleProcess")
	return f.processed("OutputResampleProcess", samples)
}

func (f *fakeInstance) OutputResampleSampleRate(adsp.StreamHandle) int {
	f.hit("OutputResampleSampleRate")
	return 44100
}

func (f *fakeInstance) OutputResampleGetDelay(adsp.StreamHandle) float32 {
	f.hit("OutputResampleGetDelay")
	return 0
}

// fakeLibrary hands out one fakeInstance.
type fakeLibrary struct {
	inst           *fakeInstance
	activateStatus adsp.Status
	instanceStatus adsp.Status
	activatePanic  any
	props          adsp.Properties

	mu           sync.Mutex
	activations  int
	deactivation int
}

func (l *fakeLibrary) Activate(props adsp.Properties) adsp.Status {
	l.mu.Lock()
	l.activations++
	l.props = props
	l.mu.Unlock()
	if l.activatePanic != nil {
		panic(l.activatePanic)
	}
	return l.activateStatus
}

func (l *fakeLibrary) NewInstance(cb adsp.Callbacks) (adsp.Instance, adsp.Status) {
	l.inst.hit("CreateInstance")
	if l.inst.onCreate != nil {
		l.inst.onCreate(cb)
	}
	return l.inst, l.instanceStatus
}

func (l *fakeLibrary) Deactivate() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.deactivation++
}

func (l *fakeLibrary) deactivations() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.deactivation
}

type fakeLoader struct {
	lib   *fakeLibrary
	err   error
	mu    sync.Mutex
	loads int
}

func (l *fakeLoader) Load(context.Context, adsp.AddonInfo) (adsp.Library, error) {
	l.mu.Lock()
	l.loads++
	l.mu.Unlock()
	if l.err != nil {
		return nil, l.err
	}
	return l.lib, nil
}

func (l *fakeLoader) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loads
}

type recordingManager struct {
	mu       sync.Mutex
	disabled []string
	updates  int
	stopped  int
}

func (m *recordingManager) DisableAddon(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disabled = append(m.disabled, id)
	return nil
}

func (m *recordingManager) UpdateAddons(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates++
	return nil
}

func (m *recordingManager) Deactivate(context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped++
}

func (m *recordingManager) disabledIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.disabled...)
}

type recordingNotifier struct {
	mu     sync.Mutex
	shown  []string
}

func (n *recordingNotifier) ShowExceptionErrorDialog(_ context.Context, info adsp.AddonInfo) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.shown = append(n.shown, info.ID)
	return nil
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.shown)
}

type memoryModeStore struct {
	mu      sync.Mutex
	next    int
	modes   map[[3]int]int
	deleted int
	panicOn any
}

func newMemoryModeStore() *memoryModeStore {
	return &memoryModeStore{next: 100, modes: make(map[[3]int]int)}
}

func (s *memoryModeStore) AddUpdate(_ context.Context, m adsp.Mode) (int, error) {
	if s.panicOn != nil {
		panic(s.panicOn)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := [3]int{m.AddonID, int(m.Type), int(m.Number)}
	if id, ok := s.modes[key]; ok {
		return id, nil
	}
	s.next++
	s.modes[key] = s.next
	return s.next, nil
}

func (s *memoryModeStore) Delete(_ context.Context, m adsp.Mode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.modes, [3]int{m.AddonID, int(m.Type), int(m.Number)})
	s.deleted++
	return nil
}

func (s *memoryModeStore) calls() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.modes), s.deleted
}

// syncBuffer lets several goroutines log into one buffer.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

// records returns every logged record at the given level.
func (b *syncBuffer) records(level slog.Level) []map[string]any {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []map[string]any
	sc := bufio.NewScanner(bytes.NewReader(b.buf.Bytes()))
	for sc.Scan() {
		var rec map[string]any
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			continue
		}
		if rec["level"] == level.String() {
			out = append(out, rec)
		}
	}
	return out
}

func newCapturingLogger() (*slog.Logger, *syncBuffer) {
	buf := &syncBuffer{}
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})), buf
}

type fixture struct {
	addon    *adsp.Addon
	inst     *fakeInstance
	lib      *fakeLibrary
	loader   *fakeLoader
	manager  *recordingManager
	notifier *recordingNotifier
	store    *memoryModeStore
	logs     *syncBuffer
}

var testInfo = adsp.AddonInfo{
	ID:      "adsp.fake",
	Name:    "Fake",
	Version: "1.0.0",
	Path:    "/addons/adsp.fake",
	Profile: "/profile/adsp.fake",
}

func newFixture() *fixture {
	inst := newFakeInstance()
	lib := &fakeLibrary{inst: inst}
	loader := &fakeLoader{lib: lib}
	manager := &recordingManager{}
	notifier := &recordingNotifier{}
	store := newMemoryModeStore()
	logger, logs := newCapturingLogger()
	a := adsp.NewAddon(testInfo, loader,
		adsp.WithLogger(logger),
		adsp.WithAddonManager(manager),
		adsp.WithNotifier(notifier),
		adsp.WithModeStore(store),
	)
	return &fixture{
		addon:    a,
		inst:     inst,
		lib:      lib,
		loader:   loader,
		manager:  manager,
		notifier: notifier,
		store:    store,
		logs:     logs,
	}
}
