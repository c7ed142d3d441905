package kernel

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/GlaceonBot/Jolteon/pkg/jolteon"
)

type fakeModule struct {
	name        string
	spec        jolteon.ModuleSpec
	registerErr error

	registered bool
	started    bool
	shutdown   bool
}

func (m *fakeModule) Name() string {
	return m.name
}

func (m *fakeModule) Spec() jolteon.ModuleSpec {
	return m.spec
}

func (m *fakeModule) OnRegister(context.Context, jolteon.ModuleRuntime) error {
	m.registered = true

	return m.registerErr
}

func (m *fakeModule) OnStart(context.Context) error {
	m.started = true

	return nil
}

func (m *fakeModule) OnShutdown(context.Context) error {
	m.shutdown = true

	return nil
}

type fakeDriver struct {
	name   string
	sinkCh chan jolteon.EventSink
}

func newFakeDriver(name string) *fakeDriver {
	return &fakeDriver{name: name, sinkCh: make(chan jolteon.EventSink, 1)}
}

func (d *fakeDriver) Name() string {
	return d.name
}

func (d *fakeDriver) Identity() jolteon.BotIdentity {
	return jolteon.BotIdentity{Username: "jolteon"}
}

func (d *fakeDriver) Start(ctx context.Context, sink jolteon.EventSink) error {
	select {
	case d.sinkCh <- sink:
	default:
	}
	<-ctx.Done()

	return ctx.Err()
}

func (d *fakeDriver) Shutdown(context.Context) error {
	return nil
}

func commandModuleSpec(commandName string, handler jolteon.EventHandler) jolteon.ModuleSpec {
	return jolteon.ModuleSpec{
		Handlers: []jolteon.ModuleHandler{
			{
				Capability: jolteon.Capability{
					Name: commandName + "-handler",
					Interest: jolteon.InterestSet{
						Kinds:          []jolteon.EventKind{jolteon.EventKindCommandInvoked},
						RequireCommand: true,
						CommandNames:   []string{commandName},
					},
				},
				Subscription: jolteon.NewDefaultSubscriptionSpec(commandName),
				Handler:      handler,
			},
		},
		Commands: []jolteon.CommandSpec{{Name: commandName}},
	}
}

func nopHandler(context.Context, *jolteon.Event) error {
	return nil
}

func TestRegisterModuleRejectsDuplicates(t *testing.T) {
	kernelRuntime := New()

	first := &fakeModule{name: "tags", spec: commandModuleSpec("tag", nopHandler)}
	if err := kernelRuntime.RegisterModule(context.Background(), first); err != nil {
		t.Fatalf("register first: %v", err)
	}

	duplicate := &fakeModule{name: "tags", spec: commandModuleSpec("other", nopHandler)}
	err := kernelRuntime.RegisterModule(context.Background(), duplicate)
	if !errors.Is(err, jolteon.ErrModuleAlreadyRegistered) {
		t.Fatalf("error = %v, want ErrModuleAlreadyRegistered", err)
	}
}

func TestRegisterModuleRejectsCommandWordCollisions(t *testing.T) {
	kernelRuntime := New()

	first := &fakeModule{name: "tags", spec: commandModuleSpec("tag", nopHandler)}
	if err := kernelRuntime.RegisterModule(context.Background(), first); err != nil {
		t.Fatalf("register first: %v", err)
	}

	colliding := &fakeModule{
		name: "other",
		spec: jolteon.ModuleSpec{
			Commands: []jolteon.CommandSpec{{Name: "stats", Aliases: []string{"tag"}}},
		},
	}
	err := kernelRuntime.RegisterModule(context.Background(), colliding)
	if err == nil {
		t.Fatal("colliding alias should fail registration")
	}
	if _, found := kernelRuntime.lookupCommand("stats"); found {
		t.Fatal("partial registration left colliding module commands behind")
	}
}

func TestRegisterModuleRollsBackOnHookFailure(t *testing.T) {
	kernelRuntime := New()

	failing := &fakeModule{
		name:        "tags",
		spec:        commandModuleSpec("tag", nopHandler),
		registerErr: errors.New("dependency missing"),
	}
	if err := kernelRuntime.RegisterModule(context.Background(), failing); err == nil {
		t.Fatal("hook failure should fail registration")
	}

	if _, found := kernelRuntime.lookupCommand("tag"); found {
		t.Fatal("rolled-back module commands still registered")
	}

	// Name is free again after rollback.
	retry := &fakeModule{name: "tags", spec: commandModuleSpec("tag", nopHandler)}
	if err := kernelRuntime.RegisterModule(context.Background(), retry); err != nil {
		t.Fatalf("re-register after rollback: %v", err)
	}
}

func TestRegisterModuleRequiresDeclaredServices(t *testing.T) {
	kernelRuntime := New()

	needy := &fakeModule{
		name: "tags",
		spec: jolteon.ModuleSpec{
			Handlers: []jolteon.ModuleHandler{
				{
					Capability: jolteon.Capability{
						Name:             "needs-dispatcher",
						RequiredServices: []string{jolteon.ServiceDispatcher},
					},
					Handler: nopHandler,
				},
			},
		},
	}
	if err := kernelRuntime.RegisterModule(context.Background(), needy); err == nil {
		t.Fatal("missing required service should fail registration")
	}

	if err := kernelRuntime.RegisterService(jolteon.ServiceDispatcher, &recordingDispatcher{}); err != nil {
		t.Fatalf("register dispatcher: %v", err)
	}
	if err := kernelRuntime.RegisterModule(context.Background(), needy); err != nil {
		t.Fatalf("register with service present: %v", err)
	}
}

func TestRegisterDriverRejectsDuplicates(t *testing.T) {
	kernelRuntime := New()

	if err := kernelRuntime.RegisterDriver(newFakeDriver("console")); err != nil {
		t.Fatalf("register driver: %v", err)
	}
	err := kernelRuntime.RegisterDriver(newFakeDriver("console"))
	if !errors.Is(err, jolteon.ErrDriverAlreadyRegistered) {
		t.Fatalf("error = %v, want ErrDriverAlreadyRegistered", err)
	}
}

func TestCommandCatalogKeepsRegistrationOrder(t *testing.T) {
	kernelRuntime := New()

	for _, name := range []string{"prefix", "tag", "help"} {
		module := &fakeModule{name: name + "-module", spec: commandModuleSpec(name, nopHandler)}
		if err := kernelRuntime.RegisterModule(context.Background(), module); err != nil {
			t.Fatalf("register %s: %v", name, err)
		}
	}

	catalog, err := jolteon.ResolveAs[jolteon.CommandCatalog](
		kernelRuntime.Services(),
		jolteon.ServiceCommandCatalog,
	)
	if err != nil {
		t.Fatalf("resolve catalog: %v", err)
	}

	commands := catalog.Commands()
	want := []string{"prefix", "tag", "help"}
	if len(commands) != len(want) {
		t.Fatalf("commands = %d, want %d", len(commands), len(want))
	}
	for i, name := range want {
		if commands[i].Name != name {
			t.Fatalf("commands[%d] = %q, want %q", i, commands[i].Name, name)
		}
	}
}

func TestRunLifecycleDeliversCommandsEndToEnd(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	kernelRuntime := New(fastTimeoutOptions()...)
	dispatcher := &recordingDispatcher{}
	if err := kernelRuntime.RegisterService(jolteon.ServiceDispatcher, dispatcher); err != nil {
		t.Fatalf("register dispatcher: %v", err)
	}

	handled := make(chan string, 1)
	module := &fakeModule{
		name: "tags",
		spec: commandModuleSpec("tag", func(_ context.Context, event *jolteon.Event) error {
			handled <- event.Command.Name
			return nil
		}),
	}
	if err := kernelRuntime.RegisterModule(context.Background(), module); err != nil {
		t.Fatalf("register module: %v", err)
	}

	driver := newFakeDriver("console")
	if err := kernelRuntime.RegisterDriver(driver); err != nil {
		t.Fatalf("register driver: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan error, 1)
	go func() {
		runDone <- kernelRuntime.Run(ctx)
	}()

	var sink jolteon.EventSink
	select {
	case sink = <-driver.sinkCh:
	case <-time.After(time.Second):
		t.Fatal("driver never started")
	}

	event := newInboundMessage(";tag rules")
	if err := sink.Publish(context.Background(), event); err != nil {
		t.Fatalf("publish through driver sink: %v", err)
	}

	select {
	case name := <-handled:
		if name != "tag" {
			t.Fatalf("handled command = %q", name)
		}
	case <-time.After(time.Second):
		t.Fatal("command handler never invoked")
	}

	cancel()
	select {
	case err := <-runDone:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("kernel did not shut down")
	}

	if !module.started || !module.shutdown {
		t.Fatalf("module lifecycle: started=%v shutdown=%v", module.started, module.shutdown)
	}
}

func fastTimeoutOptions() []Option {
	return []Option{
		WithModuleHookTimeout(time.Second),
		WithShutdownTimeout(time.Second),
		WithDefaultHandlerTimeout(time.Second),
	}
}
