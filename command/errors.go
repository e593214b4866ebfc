package command

// StartRejectedError はバックエンドがセッション開始を拒否したことを表します。
// Detail にはバックエンドが返した文言がそのまま入り、UIはこれを無加工で表示します。
type StartRejectedError struct {
	Detail string
}

func (e *StartRejectedError) Error() string {
	return e.Detail
}
