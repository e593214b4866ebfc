package domain

import "math/bits"

// PokemonSummary は手持ちポケモン1体の表示用サマリーです。
// バックエンドのメモリリーダーが送るスナップショットをそのまま写し取ります。
type PokemonSummary struct {
	SpeciesID    int      `json:"species_id"`
	Nickname     string   `json:"nickname"`
	Level        int      `json:"level"`
	CurrentHP    int      `json:"current_hp"`
	MaxHP        int      `json:"max_hp"`
	HPPercentage float64  `json:"hp_percentage"`
	Status       int      `json:"status"`
	IsFainted    bool     `json:"is_fainted"`
	Types        []string `json:"types"`
}

// ComputeHPPercentage はHP割合をローカルで再計算します。
// バックエンドが送ってくる hp_percentage と一致することが不変条件です。
func (p PokemonSummary) ComputeHPPercentage() float64 {
	if p.MaxHP == 0 {
		return 0
	}
	return float64(p.CurrentHP) / float64(p.MaxHP) * 100
}

// PartySnapshot は手持ちパーティ全体のスナップショットです。
type PartySnapshot struct {
	PartyCount        int              `json:"party_count"`
	Pokemon           []PokemonSummary `json:"pokemon"`
	AllFainted        bool             `json:"all_fainted"`
	TotalHPPercentage float64          `json:"total_hp_percentage"`
}

// Position はプレイヤーのマップ上の位置です。
type Position struct {
	X         int    `json:"x"`
	Y         int    `json:"y"`
	MapBank   int    `json:"map_bank"`
	MapNumber int    `json:"map_number"`
	Location  string `json:"location_id"`
}

// GameState はバックエンドから届くゲーム状態の完全なスナップショットです。
// フィールド単位のマージは行わず、常に丸ごと置き換えます。
type GameState struct {
	Party        PartySnapshot   `json:"party"`
	Position     Position        `json:"position"`
	Money        int             `json:"money"`
	Badges       uint32          `json:"badges"`
	InBattle     bool            `json:"in_battle"`
	EnemyPokemon *PokemonSummary `json:"enemy_pokemon"`
}

// BadgeCount はバッジビットマスクのpopcountを返します。
// バックエンドも badge_count を送ってくるが、表示用の導出はクライアント側で行います。
func (g GameState) BadgeCount() int {
	return bits.OnesCount32(g.Badges)
}

// Lead は先頭の戦闘可能なポケモンを返します。全滅時は nil。
func (g GameState) Lead() *PokemonSummary {
	for i := range g.Party.Pokemon {
		if !g.Party.Pokemon[i].IsFainted {
			return &g.Party.Pokemon[i]
		}
	}
	return nil
}
