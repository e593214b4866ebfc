package domain

// AgentStatus はエージェントの稼働状態です。
type AgentStatus string

const (
	AgentStatusActive AgentStatus = "active"
	AgentStatusIdle   AgentStatus = "idle"
	AgentStatusBusy   AgentStatus = "busy"
)

// 既知の5エージェント。名前がロスターのキーになります。
const (
	AgentPlanning   = "Planning Agent"
	AgentNavigation = "Navigation Agent"
	AgentBattle     = "Battle Agent"
	AgentMemory     = "Memory Agent"
	AgentCritique   = "Critique Agent"
)

// AgentDescriptor はダッシュボードに表示するエージェント1体の情報です。
// ロスターは固定で、実行時に追加・削除されることはありません。
type AgentDescriptor struct {
	Name   string      `json:"name"`
	Role   string      `json:"role"`
	Status AgentStatus `json:"status"`
	Icon   string      `json:"icon"`
}

// DefaultRoster はセッション開始時の初期ロスターを返します。全員idleで始まります。
func DefaultRoster() []AgentDescriptor {
	return []AgentDescriptor{
		{Name: AgentPlanning, Role: "Strategic Planner", Status: AgentStatusIdle, Icon: "🧠"},
		{Name: AgentNavigation, Role: "Overworld Navigator", Status: AgentStatusIdle, Icon: "🧭"},
		{Name: AgentBattle, Role: "Combat Strategist", Status: AgentStatusIdle, Icon: "⚔️"},
		{Name: AgentMemory, Role: "Game Memory Manager", Status: AgentStatusIdle, Icon: "💾"},
		{Name: AgentCritique, Role: "Task Evaluator", Status: AgentStatusIdle, Icon: "🔍"},
	}
}
