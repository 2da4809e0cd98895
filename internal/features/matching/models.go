// Package matching подбирает учителей под запрос ученика.
// Поиск только читает индекс навыков, присутствие и балансы.
package matching

// Candidate — кандидат в учителя для одного запроса. Нигде не хранится.
type Candidate struct {
	UserID  string
	Overlap int      // сколько запрошенных навыков учитель знает
	Skills  []string // какие именно
	Online  bool
	Balance int64
}

// less задаёт порядок выдачи: пересечение ↓, онлайн первыми, баланс ↓, id ↑.
func less(a, b Candidate) bool {
	if a.Overlap != b.Overlap {
		return a.Overlap > b.Overlap
	}
	if a.Online != b.Online {
		return a.Online
	}
	if a.Balance != b.Balance {
		return a.Balance > b.Balance
	}
	return a.UserID < b.UserID
}
