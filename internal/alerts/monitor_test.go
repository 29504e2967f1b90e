package alerts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"gmx-trade-agent/internal/notify"
	"gmx-trade-agent/internal/scheduler"
)

type fakeSource struct {
	mu     sync.Mutex
	prices map[string]decimal.Decimal
	errs   map[string]error
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		prices: map[string]decimal.Decimal{},
		errs:   map[string]error{},
	}
}

func (f *fakeSource) set(symbol string, price float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prices[strings.ToUpper(symbol)] = decimal.NewFromFloat(price)
}

func (f *fakeSource) fail(symbol string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[strings.ToUpper(symbol)] = err
}

func (f *fakeSource) clear(symbol string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.errs, strings.ToUpper(symbol))
}

func (f *fakeSource) GetPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	symbol = strings.ToUpper(symbol)
	if err, ok := f.errs[symbol]; ok {
		return decimal.Decimal{}, err
	}
	price, ok := f.prices[symbol]
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("symbol %s not configured", symbol)
	}
	return price, nil
}

type fakeNotifier struct {
	mu      sync.Mutex
	signals []notify.Signal
	err     error
}

func (f *fakeNotifier) Notify(ctx context.Context, signal notify.Signal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signals = append(f.signals, signal)
	return f.err
}

func (f *fakeNotifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.signals)
}

func noopLogger() zerolog.Logger {
	return zerolog.Nop()
}

func threshold(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v)
}

func TestRegisterCapturesBaseline(t *testing.T) {
	source := newFakeSource()
	source.set("ETH", 100)
	monitor := NewMonitor(source, Options{}, noopLogger())

	if err := monitor.Register(context.Background(), Spec{Token: "eth", Threshold: threshold(0.05), OwnerID: "u1"}); err != nil {
		t.Fatalf("注册不应报错: %v", err)
	}

	if monitor.Len() != 1 {
		t.Fatalf("应存储一条 alert, 实际 %d", monitor.Len())
	}
	alert := monitor.snapshot()[0]
	if alert.Token != "ETH" {
		t.Fatalf("symbol 应归一化为大写, 实际 %s", alert.Token)
	}
	if !alert.Baseline.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("baseline 应为注册时价格, 实际 %s", alert.Baseline.String())
	}
	if alert.Triggered() {
		t.Fatal("新 alert 应处于 ARMED 状态")
	}
}

func TestRegisterFailureStoresNothing(t *testing.T) {
	source := newFakeSource()
	source.fail("ETH", errors.New("rpc down"))
	monitor := NewMonitor(source, Options{}, noopLogger())

	if err := monitor.Register(context.Background(), Spec{Token: "ETH", Threshold: threshold(0.05)}); err == nil {
		t.Fatal("价格读取失败时注册应报错")
	}
	if monitor.Len() != 0 {
		t.Fatalf("失败的注册不应留下部分记录, 实际 %d", monitor.Len())
	}
}

func TestRegisterRejectsBadSpec(t *testing.T) {
	source := newFakeSource()
	source.set("ETH", 100)
	monitor := NewMonitor(source, Options{}, noopLogger())

	if err := monitor.Register(context.Background(), Spec{Token: "ETH", Threshold: decimal.Zero}); !errors.Is(err, ErrInvalidThreshold) {
		t.Fatalf("零阈值应被拒绝, got %v", err)
	}

	bad := decimal.NewFromInt(2)
	if err := monitor.Register(context.Background(), Spec{Token: "ETH", Threshold: threshold(0.05), Slippage: &bad}); !errors.Is(err, ErrInvalidSlippage) {
		t.Fatalf("非法滑点应被拒绝, got %v", err)
	}
	if monitor.Len() != 0 {
		t.Fatal("被拒绝的注册不应入库")
	}
}

func TestDuplicateRegistrationsAreIndependent(t *testing.T) {
	source := newFakeSource()
	source.set("ETH", 100)
	notifier := &fakeNotifier{}
	monitor := NewMonitor(source, Options{Notifier: notifier}, noopLogger())

	spec := Spec{Token: "ETH", Threshold: threshold(0.05), OwnerID: "u1"}
	if err := monitor.Register(context.Background(), spec); err != nil {
		t.Fatal(err)
	}
	if err := monitor.Register(context.Background(), spec); err != nil {
		t.Fatal(err)
	}
	if monitor.Len() != 2 {
		t.Fatalf("重复注册应各自独立, 实际 %d", monitor.Len())
	}

	source.set("ETH", 90)
	monitor.Sweep(context.Background())
	if notifier.count() != 2 {
		t.Fatalf("两条独立 alert 应各发一次通知, 实际 %d", notifier.count())
	}
}

func TestSweepBelowThresholdIsQuiet(t *testing.T) {
	source := newFakeSource()
	source.set("ETH", 100)
	notifier := &fakeNotifier{}
	monitor := NewMonitor(source, Options{Notifier: notifier}, noopLogger())

	if err := monitor.Register(context.Background(), Spec{Token: "ETH", Threshold: threshold(0.05)}); err != nil {
		t.Fatal(err)
	}

	source.set("ETH", 99)
	for i := 0; i < 3; i++ {
		monitor.Sweep(context.Background())
	}

	if notifier.count() != 0 {
		t.Fatalf("未过阈值不应通知, 实际 %d", notifier.count())
	}
	if monitor.snapshot()[0].Triggered() {
		t.Fatal("alert 应保持 ARMED")
	}
}

func TestSweepIsEdgeTriggered(t *testing.T) {
	source := newFakeSource()
	source.set("ETH", 100)
	notifier := &fakeNotifier{}
	monitor := NewMonitor(source, Options{Notifier: notifier}, noopLogger())

	if err := monitor.Register(context.Background(), Spec{Token: "ETH", Threshold: threshold(0.05)}); err != nil {
		t.Fatal(err)
	}

	// Drop sits exactly at the threshold for three consecutive sweeps.
	source.set("ETH", 95)
	for i := 0; i < 3; i++ {
		monitor.Sweep(context.Background())
	}

	if notifier.count() != 1 {
		t.Fatalf("应只在跨越时通知一次, 实际 %d", notifier.count())
	}
	if !monitor.snapshot()[0].Triggered() {
		t.Fatal("alert 应保持 FIRED")
	}

	signal := notifier.signals[0]
	if signal.Action != ActionBuy {
		t.Fatalf("action 应为 BUY, 实际 %s", signal.Action)
	}
	if !signal.Baseline.Equal(decimal.NewFromInt(100)) || !signal.Price.Equal(decimal.NewFromInt(95)) {
		t.Fatalf("signal 应携带基准价与现价: %+v", signal)
	}
	if !signal.Drop.Equal(decimal.NewFromFloat(0.05)) {
		t.Fatalf("drop 应为 0.05, 实际 %s", signal.Drop.String())
	}
}

func TestSweepRearmsAndFiresAgain(t *testing.T) {
	source := newFakeSource()
	source.set("ETH", 100)
	notifier := &fakeNotifier{}
	monitor := NewMonitor(source, Options{Notifier: notifier}, noopLogger())

	if err := monitor.Register(context.Background(), Spec{Token: "ETH", Threshold: threshold(0.05)}); err != nil {
		t.Fatal(err)
	}

	source.set("ETH", 95)
	monitor.Sweep(context.Background()) // fires
	source.set("ETH", 100)
	monitor.Sweep(context.Background()) // re-arms silently
	source.set("ETH", 95)
	monitor.Sweep(context.Background()) // fires again

	if notifier.count() != 2 {
		t.Fatalf("重新武装后应再次通知, 实际 %d", notifier.count())
	}
	if !monitor.snapshot()[0].Triggered() {
		t.Fatal("alert 应处于 FIRED")
	}
}

func TestSweepIsolatesPerAlertFailures(t *testing.T) {
	source := newFakeSource()
	source.set("ETH", 100)
	source.set("BTC", 50000)
	notifier := &fakeNotifier{}
	monitor := NewMonitor(source, Options{Notifier: notifier}, noopLogger())

	if err := monitor.Register(context.Background(), Spec{Token: "ETH", Threshold: threshold(0.05)}); err != nil {
		t.Fatal(err)
	}
	if err := monitor.Register(context.Background(), Spec{Token: "BTC", Threshold: threshold(0.05)}); err != nil {
		t.Fatal(err)
	}

	source.fail("ETH", errors.New("rpc timeout"))
	source.set("BTC", 45000)
	monitor.Sweep(context.Background())

	if notifier.count() != 1 {
		t.Fatalf("B 的 alert 应照常评估并触发, 实际 %d", notifier.count())
	}
	if notifier.signals[0].Token != "BTC" {
		t.Fatalf("触发的应是 BTC, 实际 %s", notifier.signals[0].Token)
	}
	if monitor.snapshot()[0].Triggered() {
		t.Fatal("读取失败的 alert 状态不应改变")
	}

	// Next sweep the failed read recovers and can fire.
	source.clear("ETH")
	source.set("ETH", 90)
	monitor.Sweep(context.Background())
	if notifier.count() != 2 {
		t.Fatalf("恢复后的 alert 应能触发, 实际 %d", notifier.count())
	}
}

func TestNotifierFailureDoesNotPoisonSweep(t *testing.T) {
	source := newFakeSource()
	source.set("ETH", 100)
	notifier := &fakeNotifier{err: errors.New("webhook 500")}
	monitor := NewMonitor(source, Options{Notifier: notifier}, noopLogger())

	if err := monitor.Register(context.Background(), Spec{Token: "ETH", Threshold: threshold(0.05)}); err != nil {
		t.Fatal(err)
	}

	source.set("ETH", 90)
	monitor.Sweep(context.Background())

	// Delivery failed but the alert still transitioned; no re-send while
	// the condition holds.
	if !monitor.snapshot()[0].Triggered() {
		t.Fatal("通知失败不应阻止状态迁移")
	}
	monitor.Sweep(context.Background())
	if notifier.count() != 1 {
		t.Fatalf("通知失败不应导致重发, 实际 %d", notifier.count())
	}
}

func TestMonitorEndToEnd(t *testing.T) {
	source := newFakeSource()
	source.set("X", 100)
	notifier := &fakeNotifier{}
	monitor := NewMonitor(source, Options{Notifier: notifier}, noopLogger())

	if err := monitor.Register(context.Background(), Spec{Token: "X", Threshold: threshold(0.05), OwnerID: "u9"}); err != nil {
		t.Fatal(err)
	}
	alert := monitor.snapshot()[0]
	if !alert.Baseline.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("baseline 应为 100, 实际 %s", alert.Baseline.String())
	}

	source.set("X", 94) // drop 0.06 >= 0.05
	monitor.Sweep(context.Background())
	if notifier.count() != 1 || !alert.Triggered() {
		t.Fatalf("第一次下跌应触发: count=%d triggered=%v", notifier.count(), alert.Triggered())
	}

	source.set("X", 96) // drop 0.04 < 0.05
	monitor.Sweep(context.Background())
	if notifier.count() != 1 || alert.Triggered() {
		t.Fatalf("回升应静默重新武装: count=%d triggered=%v", notifier.count(), alert.Triggered())
	}

	source.set("X", 90) // drop 0.10 >= 0.05
	monitor.Sweep(context.Background())
	if notifier.count() != 2 || !alert.Triggered() {
		t.Fatalf("再次下跌应第二次触发: count=%d triggered=%v", notifier.count(), alert.Triggered())
	}
}

func TestRunRefusesConcurrentLoops(t *testing.T) {
	source := newFakeSource()
	monitor := NewMonitor(source, Options{}, noopLogger())

	sched := scheduler.New(scheduler.Options{Interval: 10 * time.Millisecond}, noopLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- monitor.Run(ctx, sched)
	}()

	// Give the first loop time to claim the running flag.
	time.Sleep(50 * time.Millisecond)

	if err := monitor.Run(ctx, scheduler.New(scheduler.Options{Interval: 10 * time.Millisecond}, noopLogger())); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("第二个 Run 应拒绝, got %v", err)
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("取消后应返回 context.Canceled, got %v", err)
	}

	// After the loop exits the monitor can be started again.
	ctx2, cancel2 := context.WithCancel(context.Background())
	go func() {
		done <- monitor.Run(ctx2, sched)
	}()
	time.Sleep(50 * time.Millisecond)
	cancel2()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("重新启动应正常运行, got %v", err)
	}
}
