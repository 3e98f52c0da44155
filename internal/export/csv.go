// Sessionrec - Event Session Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sessionrec

package export

import (
	"encoding/csv"
	"io"
	"strconv"
	"strings"

	"github.com/tomtom215/sessionrec/internal/recommend"
)

// csvHeader is one row per visitor and recommended session.
var csvHeader = []string{
	"visitor_id",
	"job_role",
	"practice_type",
	"organisation_type",
	"country",
	"strategy",
	"rank",
	"session_id",
	"title",
	"stream",
	"venue",
	"date",
	"start_time",
	"end_time",
	"sponsored",
	"sponsor_name",
	"similarity",
	"matched_past_session",
	"control_group",
	"overlapping_sessions",
}

func writeCSV(w io.Writer, results []*recommend.VisitorResult, overlaps recommend.OverlapIndex) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}

	for _, res := range results {
		v := &res.Visitor
		for i := range res.Recommendations {
			s := &res.Recommendations[i]
			row := []string{
				v.ID,
				v.JobRole,
				v.PracticeType,
				v.OrganisationType,
				v.Country,
				string(res.Strategy),
				strconv.Itoa(i + 1),
				s.ID,
				s.Title,
				s.Stream,
				s.Venue,
				s.Date,
				s.StartTime,
				s.EndTime,
				strconv.FormatBool(s.Sponsored),
				s.SponsorName,
				strconv.FormatFloat(s.Similarity, 'f', 6, 64),
				s.MatchedPastSession,
				boolToDigit(res.ControlGroup),
				strings.Join(overlaps.For(v.ID, s.ID), ";"),
			}
			if err := cw.Write(row); err != nil {
				return err
			}
		}
	}

	cw.Flush()
	return cw.Error()
}

func boolToDigit(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
