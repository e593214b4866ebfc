package tui

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"emberwatch/state"
	"emberwatch/stream"
)

const refreshInterval = 500 * time.Millisecond

// ボタン入力の押下フレーム数。だいたい人間の一押しに相当する長さ。
const buttonFrames = 10

// Commander はTUIが発行する制御操作の集合です。command.Dispatcher が実装します。
type Commander interface {
	Start(ctx context.Context, model string) error
	Stop(ctx context.Context) error
	Iterate(ctx context.Context)
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	PressButton(ctx context.Context, button string, frames int) error
	Running() bool
}

// Streamer は接続状態の読み取り口です。stream.Client が実装します。
type Streamer interface {
	Status() stream.Status
}

// tickMsg は周期的な再描画のトリガーです。ストアのスナップショットを取り直します。
type tickMsg time.Time

// commandDoneMsg はバックエンド操作の完了通知です。
type commandDoneMsg struct {
	verb string
	err  error
}

func tickCmd() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Model はダッシュボードのbubbleteaモデルです。
// 描画はストアのスナップショットだけを見ます。ネットワークには触れません。
type Model struct {
	store      *state.Store
	commander  Commander
	streamer   Streamer
	agentModel string

	width  int
	height int

	spinner spinner.Model
	keys    keyMap

	snap   state.Snapshot
	status stream.Status
	notice string
}

// New はTUIモデルを生成します。agentModelはstart時にバックエンドへ渡すモデル名です。
func New(store *state.Store, commander Commander, streamer Streamer, agentModel string) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	return Model{
		store:      store,
		commander:  commander,
		streamer:   streamer,
		agentModel: agentModel,
		spinner:    sp,
		keys:       defaultKeyMap(),
		snap:       store.Snapshot(),
		status:     stream.StatusDisconnected,
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tickCmd())
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tickMsg:
		m.snap = m.store.Snapshot()
		m.status = m.streamer.Status()
		return m, tickCmd()

	case commandDoneMsg:
		if msg.err != nil {
			m.notice = fmt.Sprintf("%s failed: %v", msg.verb, msg.err)
		} else {
			m.notice = fmt.Sprintf("%s ok", msg.verb)
		}
		m.snap = m.store.Snapshot()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Start):
		// 接続が立っていないのにstartしても状態が見えないので、UI側で弾く
		if m.status != stream.StatusConnected {
			m.notice = "not connected to backend"
			return m, nil
		}
		return m, m.commandCmd("start", func(ctx context.Context) error {
			return m.commander.Start(ctx, m.agentModel)
		})

	case key.Matches(msg, m.keys.Stop):
		return m, m.commandCmd("stop", m.commander.Stop)

	case key.Matches(msg, m.keys.Iterate):
		return m, m.commandCmd("iterate", func(ctx context.Context) error {
			m.commander.Iterate(ctx)
			return nil
		})

	case key.Matches(msg, m.keys.Clear):
		m.store.ClearLogs()
		m.snap = m.store.Snapshot()
		m.notice = "logs cleared"
		return m, nil

	case key.Matches(msg, m.keys.Pause):
		return m, m.commandCmd("pause", m.commander.Pause)

	case key.Matches(msg, m.keys.Resume):
		return m, m.commandCmd("resume", m.commander.Resume)

	case key.Matches(msg, m.keys.Up):
		return m, m.buttonCmd("up")
	case key.Matches(msg, m.keys.Down):
		return m, m.buttonCmd("down")
	case key.Matches(msg, m.keys.Left):
		return m, m.buttonCmd("left")
	case key.Matches(msg, m.keys.Right):
		return m, m.buttonCmd("right")
	case key.Matches(msg, m.keys.ButtonA):
		return m, m.buttonCmd("a")
	case key.Matches(msg, m.keys.ButtonB):
		return m, m.buttonCmd("b")
	}

	return m, nil
}

func (m Model) commandCmd(verb string, op func(ctx context.Context) error) tea.Cmd {
	return func() tea.Msg {
		return commandDoneMsg{verb: verb, err: op(context.Background())}
	}
}

func (m Model) buttonCmd(button string) tea.Cmd {
	return m.commandCmd("button "+button, func(ctx context.Context) error {
		return m.commander.PressButton(ctx, button, buttonFrames)
	})
}
