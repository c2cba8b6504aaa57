package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"gopkg.in/yaml.v2"

	"vestiar/access"
	"vestiar/audit"
	"vestiar/door"
	"vestiar/mqtt"
	"vestiar/schedule"
	"vestiar/wiegand"
)

var myBuild string

// loopPeriod is the polling cadence. Cooperative timeouts have up to one
// period of extra latency.
const loopPeriod = 5 * time.Millisecond

// command is one unit of work handed from transport callbacks and the
// enroll button to the polling loop. Nothing outside the loop goroutine
// touches component state.
type command struct {
	kind    string
	payload []byte
}

// App holds the application state and dependencies.
type App struct {
	cfg        *Config
	mqtt       *mqtt.Client
	decoder    *wiegand.Decoder
	buses      []*wiegand.Bus
	alt        wiegand.AltSource
	strike     door.Strike
	sensors    door.Sensors
	actuator   *door.Actuator
	controller *access.Controller
	schedule   *schedule.Engine
	recorder   *audit.Recorder
	registry   *Registry
	button     *EnrollButton
	cmds       chan command
	altCreds   chan wiegand.Credential
	ctx        context.Context
	cancel     context.CancelFunc
}

// codeChange is the payload of a code/set command.
type codeChange struct {
	Current string `json:"current"`
	New     string `json:"new"`
	Confirm string `json:"confirm"`
}

func main() {
	fmt.Printf("vestiar build %s\n", myBuild)

	cfgfile := flag.String("cfg", "vestiar.cfg", "Config file")
	flag.Parse()

	// Load configuration
	f, err := os.Open(*cfgfile)
	if err != nil {
		log.Fatalf("Open config: %v", err)
	}

	var cfg Config
	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		log.Fatalf("Decode config: %v", err)
	}
	f.Close()

	if cfg.ClientID == "" {
		log.Fatal("client_id missing in config file")
	}

	ctx, cancel := context.WithCancel(context.Background())

	app := &App{
		cfg:      &cfg,
		ctx:      ctx,
		cancel:   cancel,
		cmds:     make(chan command, 16),
		altCreds: make(chan wiegand.Credential, 4),
	}

	// Credential registry
	app.registry = NewRegistry(cfg.RegistryFile)
	if err := app.registry.LoadFromFile(); err != nil {
		log.Printf("Warning: could not load registry: %v", err)
	}
	log.Printf("Registry: %d entries", app.registry.Count())

	// Audit recorder, forwarding to MQTT
	app.recorder = audit.New(cfg.Audit, audit.SinkFunc(app.publishAudit))

	// Door actuator
	app.strike, err = door.NewStrike(cfg.Door)
	if err != nil {
		log.Fatalf("Init strike: %v", err)
	}
	app.sensors, err = door.NewSensors(cfg.Door)
	if err != nil {
		log.Fatalf("Init sensors: %v", err)
	}
	app.actuator, err = door.NewActuator(cfg.Door, app.strike, app.sensors, app.recorder, app.publishStatus)
	if err != nil {
		log.Fatalf("Init actuator: %v", err)
	}

	// Access controller
	app.controller = access.New(app.registry, app.actuator, app.recorder,
		loadMasterCode(cfg.CodeFile, cfg.MasterCode))

	// Schedule engine
	app.schedule = schedule.New(app.actuator, app.recorder)
	if rules, err := loadRules(cfg.RulesFile); err != nil {
		log.Printf("Warning: could not load rules: %v", err)
	} else if err := app.schedule.Replace(rules); err != nil {
		log.Printf("Warning: could not apply rules: %v", err)
	}

	// Wiegand buses: one independent accumulator per source
	keypadLine := wiegand.NewLine(wiegand.SourceKeypad)
	readerLine := wiegand.NewLine(wiegand.SourceReader)
	app.decoder = wiegand.NewDecoder(keypadLine, readerLine)

	if cfg.Wiegand.KeypadD0 != 0 || cfg.Wiegand.KeypadD1 != 0 {
		bus, err := wiegand.Attach(cfg.Wiegand.Chip, cfg.Wiegand.KeypadD0, cfg.Wiegand.KeypadD1, keypadLine)
		if err != nil {
			log.Fatalf("Init keypad bus: %v", err)
		}
		app.buses = append(app.buses, bus)
	}
	if cfg.Wiegand.ReaderD0 != 0 || cfg.Wiegand.ReaderD1 != 0 {
		bus, err := wiegand.Attach(cfg.Wiegand.Chip, cfg.Wiegand.ReaderD0, cfg.Wiegand.ReaderD1, readerLine)
		if err != nil {
			log.Fatalf("Init reader bus: %v", err)
		}
		app.buses = append(app.buses, bus)
	}

	// Optional alternate credential source
	app.alt, err = wiegand.NewAltSource(cfg.Wiegand)
	if err != nil {
		log.Fatalf("Init alt source: %v", err)
	}

	// Enrollment pushbutton
	app.button, err = NewEnrollButton(cfg.EnrollPin, func() {
		app.enqueue(command{kind: "enroll_button"})
	})
	if err != nil {
		log.Fatalf("Init enroll button: %v", err)
	}

	// MQTT transport
	app.mqtt, err = mqtt.New(cfg.MQTT, cfg.ClientID, mqtt.Handlers{
		OnConnect:    app.onMQTTConnect,
		OnDisconnect: app.onMQTTDisconnect,
		OnMessage:    app.onMQTTMessage,
	})
	if err != nil {
		log.Fatalf("Init MQTT: %v", err)
	}

	// Start background goroutines
	go func() {
		if err := app.mqtt.Connect(); err != nil {
			log.Printf("MQTT connect: %v", err)
		}
	}()
	if app.alt != nil {
		go app.altListener()
	}
	go app.run()
	go app.pingSender()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	fmt.Println("Shutting down...")
	cancel()

	// Cleanup
	app.mqtt.Disconnect()
	for _, bus := range app.buses {
		bus.Close()
	}
	if app.alt != nil {
		app.alt.Close()
	}
	app.button.Release()
	app.strike.Release()
	app.sensors.Release()

	fmt.Println("Shutdown complete")
}

// run is the polling loop: drains completed frames, drives the cooperative
// timeouts, and applies queued transport commands.
func (app *App) run() {
	ticker := time.NewTicker(loopPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-app.ctx.Done():
			return

		case cmd := <-app.cmds:
			app.handleCommand(cmd, time.Now())

		case cred := <-app.altCreds:
			app.controller.HandleCredential(cred, time.Now())

		case <-ticker.C:
			now := time.Now()
			if frame, ok := app.decoder.Poll(now); ok {
				app.controller.HandleCredential(wiegand.Decode(frame), now)
			}
			app.controller.Tick(now)
			app.actuator.Tick(now)
			app.schedule.Tick(now)
		}
	}
}

func (app *App) enqueue(cmd command) {
	select {
	case app.cmds <- cmd:
	default:
		log.Printf("Command queue full, dropped %q", cmd.kind)
	}
}

func (app *App) handleCommand(cmd command, now time.Time) {
	switch cmd.kind {
	case "lock":
		app.actuator.Lock(now)

	case "unlock":
		app.actuator.Unlock(now)

	case "enroll":
		switch strings.ToUpper(strings.TrimSpace(string(cmd.payload))) {
		case "ON", "1", "TRUE":
			app.controller.StartEnrollment(now)
		default:
			app.controller.StopEnrollment(now)
		}

	case "enroll_button":
		app.controller.StartEnrollment(now)

	case "rules":
		app.applyRules(cmd.payload)

	case "registry":
		if err := app.registry.ReplaceAll(cmd.payload); err != nil {
			log.Printf("Registry update rejected: %v", err)
			return
		}
		log.Printf("Registry replaced: %d entries", app.registry.Count())
		app.mqtt.Publish(app.statusTopic("registry/update"), `{"status":"replaced"}`)

	case "code":
		app.changeCode(cmd.payload, now)

	case "republish":
		app.actuator.Republish()
	}
}

func (app *App) applyRules(payload []byte) {
	rules, err := schedule.ParseRules(payload)
	if err != nil {
		// Previous table stays in effect.
		log.Printf("Rule update rejected: %v", err)
		return
	}
	if err := app.schedule.Replace(rules); err != nil {
		log.Printf("Rule update rejected: %v", err)
		return
	}
	if err := saveRules(app.cfg.RulesFile, rules); err != nil {
		log.Printf("Warning: could not persist rules: %v", err)
	}
	log.Printf("Schedule replaced: %d rules", len(rules))
}

func (app *App) changeCode(payload []byte, now time.Time) {
	var ch codeChange
	if err := json.Unmarshal(payload, &ch); err != nil {
		log.Printf("Decode code change: %v", err)
		return
	}

	err := app.controller.ChangeMasterCode(ch.Current, ch.New, ch.Confirm)
	app.recorder.Record(audit.Event{
		Timestamp: now,
		Kind:      "code_change",
		Source:    "command",
		Outcome:   err == nil,
	})
	if err != nil {
		log.Printf("Code change rejected: %v", err)
		return
	}
	if err := saveMasterCode(app.cfg.CodeFile, app.controller.MasterCode()); err != nil {
		log.Printf("Warning: could not persist code: %v", err)
	}
	log.Println("Master code changed")
}

// altListener feeds credentials from the alternate source into the loop.
func (app *App) altListener() {
	for {
		select {
		case <-app.ctx.Done():
			return
		default:
		}

		cred, err := app.alt.Read(app.ctx)
		if err != nil {
			if err == context.Canceled {
				return
			}
			log.Printf("Alt source read: %v", err)
			time.Sleep(time.Second)
			continue
		}

		select {
		case app.altCreds <- cred:
		case <-app.ctx.Done():
			return
		}
	}
}

// MQTT wiring

var controlSuffixes = []string{"lock", "unlock", "enroll", "rules/set", "registry/set", "code/set"}

func (app *App) controlTopic(suffix string) string {
	return fmt.Sprintf("vestiar/control/node/%s/%s", app.cfg.ClientID, suffix)
}

func (app *App) statusTopic(suffix string) string {
	return fmt.Sprintf("vestiar/status/node/%s/%s", app.cfg.ClientID, suffix)
}

func (app *App) onMQTTConnect() {
	for _, suffix := range controlSuffixes {
		if err := app.mqtt.Subscribe(app.controlTopic(suffix)); err != nil {
			log.Printf("Subscribe error: %v", err)
		}
	}

	// Late subscribers get the current snapshot.
	app.enqueue(command{kind: "republish"})
	app.publishPing()
}

func (app *App) onMQTTDisconnect() {
	// The core keeps running; outbound events are best-effort while the
	// broker is away.
	log.Println("Operating without transport")
}

func (app *App) onMQTTMessage(topic string, payload []byte) {
	switch topic {
	case app.controlTopic("lock"):
		app.enqueue(command{kind: "lock"})
	case app.controlTopic("unlock"):
		app.enqueue(command{kind: "unlock"})
	case app.controlTopic("enroll"):
		app.enqueue(command{kind: "enroll", payload: payload})
	case app.controlTopic("rules/set"):
		app.enqueue(command{kind: "rules", payload: payload})
	case app.controlTopic("registry/set"):
		app.enqueue(command{kind: "registry", payload: payload})
	case app.controlTopic("code/set"):
		app.enqueue(command{kind: "code", payload: payload})
	}
}

// Status and audit egress

type statusMsg struct {
	Lock      string `json:"lock"`
	Door      bool   `json:"door"`
	Power     bool   `json:"power"`
	IP        string `json:"ip"`
	RSSI      int    `json:"rssi"`
	MAC       string `json:"mac"`
	Timestamp string `json:"timestamp"`
}

func (app *App) publishStatus(st door.Status) {
	if app.mqtt == nil {
		return
	}

	msg := statusMsg{
		Lock:      st.Lock.String(),
		Door:      st.Door,
		Power:     st.Power,
		IP:        localIP(),
		RSSI:      wifiRSSI(),
		MAC:       macAddr(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("Marshal status: %v", err)
		return
	}
	app.mqtt.PublishRetained(app.statusTopic("state"), string(data))
}

func (app *App) publishAudit(ev audit.Event) {
	if app.mqtt == nil {
		return
	}
	data, err := json.Marshal(ev)
	if err != nil {
		log.Printf("Marshal audit event: %v", err)
		return
	}
	app.mqtt.Publish(app.statusTopic("audit"), string(data))
}

func (app *App) publishPing() {
	app.mqtt.Publish(app.statusTopic("ping"),
		fmt.Sprintf(`{"ip":"%s","freeMemory":%d}`, localIP(), freeMemory()))
}

func (app *App) pingSender() {
	ticker := time.NewTicker(120 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-app.ctx.Done():
			return
		case <-ticker.C:
			app.publishPing()
		}
	}
}
