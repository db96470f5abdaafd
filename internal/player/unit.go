package player

// Unit は1トラック分の再生ユニットの記述子。Play の度に作り直す
type Unit struct {
	Index  int     // トラック番号
	Track  string  // トラック名
	Gain   float64 // ミュート中は0、それ以外は1
	When   float64 // 共有クロック上の開始時刻（秒）
	Offset float64 // シーク位置（秒）
}

// Plan は全トラックを同じ開始時刻・同じシーク位置で再生する記述子を作る
func Plan(tracks []string, muted []bool, when, offset float64) []Unit {
	units := make([]Unit, len(tracks))
	for i, name := range tracks {
		units[i] = Unit{
			Index:  i,
			Track:  name,
			Gain:   gainFor(i < len(muted) && muted[i]),
			When:   when,
			Offset: offset,
		}
	}
	return units
}

func gainFor(muted bool) float64 {
	if muted {
		return 0
	}
	return 1
}
