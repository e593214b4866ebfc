package tui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Start   key.Binding
	Stop    key.Binding
	Iterate key.Binding
	Clear   key.Binding
	Pause   key.Binding
	Resume  key.Binding
	Quit    key.Binding

	// 手動操作用のゲームボーイ入力
	Up      key.Binding
	Down    key.Binding
	Left    key.Binding
	Right   key.Binding
	ButtonA key.Binding
	ButtonB key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Start:   key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "start")),
		Stop:    key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "stop")),
		Iterate: key.NewBinding(key.WithKeys("i"), key.WithHelp("i", "iterate")),
		Clear:   key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "clear logs")),
		Pause:   key.NewBinding(key.WithKeys("p"), key.WithHelp("p", "pause")),
		Resume:  key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "resume")),
		Quit:    key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
		Up:      key.NewBinding(key.WithKeys("up")),
		Down:    key.NewBinding(key.WithKeys("down")),
		Left:    key.NewBinding(key.WithKeys("left")),
		Right:   key.NewBinding(key.WithKeys("right")),
		ButtonA: key.NewBinding(key.WithKeys("a")),
		ButtonB: key.NewBinding(key.WithKeys("b")),
	}
}

// helpLine はフッターに出すキー一覧です。
func (k keyMap) helpLine() []key.Binding {
	return []key.Binding{k.Start, k.Stop, k.Iterate, k.Pause, k.Resume, k.Clear, k.Quit}
}
