package council

import "sort"

// AggregateRankings combina N ranking indipendenti in un ordine consensuale.
// Funzione pura e rieseguibile: stesso input, stesso output.
//
// Punteggio Borda-style: ogni ranker assegna (N - posizione) punti alla
// label in posizione, con posizione 0-indexed dalla migliore. Le entry con
// errore non contribuiscono voti. A parità di punteggio vince la label
// presentata prima nella lista anonimizzata, garantendo determinismo.
// Con zero ranking utilizzabili l'aggregato ricade sull'ordine di
// presentazione, senza punteggio.
func AggregateRankings(entries []RankingEntry, labels []string) []AggregatedRank {
	n := len(labels)

	index := make(map[string]int, n)
	for i, l := range labels {
		index[l] = i
	}

	scores := make([]int, n)
	positions := make([][]int, n)

	for _, entry := range entries {
		if !entry.OK() || len(entry.ParsedRanking) == 0 {
			continue
		}
		for pos, label := range entry.ParsedRanking {
			i, ok := index[label]
			if !ok {
				continue
			}
			scores[i] += n - pos
			positions[i] = append(positions[i], pos)
		}
	}

	aggregate := make([]AggregatedRank, n)
	for i, label := range labels {
		aggregate[i] = AggregatedRank{
			Label:     label,
			Score:     scores[i],
			Positions: positions[i],
		}
	}

	// Punteggio decrescente; SliceStable preserva l'ordine di
	// presentazione a parità di punteggio
	sort.SliceStable(aggregate, func(a, b int) bool {
		return aggregate[a].Score > aggregate[b].Score
	})

	return aggregate
}
