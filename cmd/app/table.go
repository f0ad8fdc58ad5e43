package main

import (
	"sort"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/starford/gleaner/internal/models"
	"github.com/starford/gleaner/internal/recordstore"
)

// renderStats draws one table of counts per kind followed by one per channel.
func renderStats(st recordstore.Stats) string {
	kinds := make([][]string, 0, len(models.Kinds))
	for _, k := range models.Kinds {
		kinds = append(kinds, []string{string(k), strconv.Itoa(st.PerKind[k])})
	}

	channels := make([]string, 0, len(st.PerChannel))
	for ch := range st.PerChannel {
		channels = append(channels, ch)
	}
	sort.Slice(channels, func(i, j int) bool {
		ci, cj := st.PerChannel[channels[i]], st.PerChannel[channels[j]]
		if ci != cj {
			return ci > cj
		}
		return channels[i] < channels[j]
	})
	perChannel := make([][]string, 0, len(channels))
	for _, ch := range channels {
		perChannel = append(perChannel, []string{ch, strconv.Itoa(st.PerChannel[ch])})
	}

	total := strconv.Itoa(st.Total)
	return countTable("Kind", kinds, total) + "\n" + countTable("Channel", perChannel, total)
}

func countTable(label string, rows [][]string, total string) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{label, "Records"})
	for _, r := range rows {
		tw.AppendRow(table.Row{r[0], r[1]})
	}
	tw.AppendFooter(table.Row{"Total", total})
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignLeft, AlignHeader: text.AlignLeft},
		{Number: 2, Align: text.AlignRight, AlignHeader: text.AlignLeft, AlignFooter: text.AlignRight},
	})
	return tw.Render()
}
