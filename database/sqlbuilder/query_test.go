package sqlbuilder

import (
	"math"
	"time"
	"unicode/utf8"

	gc "gopkg.in/check.v1"

	"github.com/dropbox/sqlfluent/errors"
	. "github.com/dropbox/sqlfluent/gocheck2"
)

type QuerySuite struct {
}

var _ = gc.Suite(&QuerySuite{})

func (s *QuerySuite) TestSelect(c *gc.C) {
	q := New(nil).Select("name, position").Select("COUNT(*) AS n")
	c.Assert(q.Err(), gc.IsNil)
	c.Assert(
		q.Fragments(ClauseSelect),
		gc.DeepEquals,
		[]string{"`name`", "`position`", "COUNT(*) AS `n`"})

	q = New(nil).Select(" , ")
	c.Assert(q.Err(), HasErrorKind, errors.KindValidation)
}

func (s *QuerySuite) TestSelectRawAndAggregates(c *gc.C) {
	q := New(nil).
		SelectRaw("NOW() AS now").
		SelectMax("diameter", "").
		SelectSum("p.mass", "total").
		SelectMin("position", "first").
		SelectAvg("moons", "avg_moons")
	c.Assert(q.Err(), gc.IsNil)
	c.Assert(q.Fragments(ClauseSelect), gc.DeepEquals, []string{
		"NOW() AS now",
		"MAX(`diameter`) AS `diameter`",
		"SUM(`p`.`mass`) AS `total`",
		"MIN(`position`) AS `first`",
		"AVG(`moons`) AS `avg_moons`",
	})

	c.Assert(New(nil).SelectAvg(" ", "").Err(), HasErrorKind, errors.KindValidation)
	c.Assert(New(nil).SelectRaw().Err(), HasErrorKind, errors.KindValidation)
}

func (s *QuerySuite) TestFrom(c *gc.C) {
	q := New(nil).From("universe,galaxy  ,  star_system, planet")
	c.Assert(
		q.Fragments(ClauseFrom),
		gc.DeepEquals,
		[]string{"`universe`", "`galaxy`", "`star_system`", "`planet`"})
	c.Assert(q.Aliases(), gc.HasLen, 0)

	q = New(nil).From("universe u", "galaxy AS g")
	c.Assert(
		q.Fragments(ClauseFrom),
		gc.DeepEquals,
		[]string{"`universe` `u`", "`galaxy` AS `g`"})
	c.Assert(q.Aliases(), gc.DeepEquals, []string{"u", "g"})

	c.Assert(New(nil).From("").Err(), HasErrorKind, errors.KindValidation)
}

func (s *QuerySuite) TestJoin(c *gc.C) {
	q := New(nil).Join("universe u", "", "")
	c.Assert(q.Err(), gc.IsNil)
	c.Assert(q.Fragments(ClauseJoin), gc.DeepEquals, []string{"JOIN `universe` `u`"})

	q = New(nil).
		From("galaxies g").
		Join("planets p", "p.galaxy_id = g.id", "left").
		Join("stars s", "s.galaxy_id = g.id AND s.active = 1", "INNER").
		Join("moons", "planet_id", "").
		Join("rings r", "r.planet_id=p.id or r.moon_id = 0", "left  outer")
	c.Assert(q.Err(), gc.IsNil)
	c.Assert(q.Fragments(ClauseJoin), gc.DeepEquals, []string{
		"LEFT JOIN `planets` `p` ON `p`.`galaxy_id` = `g`.`id`",
		"INNER JOIN `stars` `s` ON `s`.`galaxy_id` = `g`.`id` AND `s`.`active` = 1",
		"JOIN `moons` USING (`planet_id`)",
		"LEFT OUTER JOIN `rings` `r` ON `r`.`planet_id` = `p`.`id` OR `r`.`moon_id` = 0",
	})
	c.Assert(q.Aliases(), gc.DeepEquals, []string{"g", "p", "s", "r"})
}

func (s *QuerySuite) TestJoinNonASCIIColumns(c *gc.C) {
	q := New(nil).From("a").Join("b", "a.x = b.città AND a.y = b.y", "LEFT")
	c.Assert(q.Err(), gc.IsNil)
	c.Assert(q.Fragments(ClauseJoin), gc.DeepEquals, []string{
		"LEFT JOIN `b` ON `a`.`x` = `b`.`città` AND `a`.`y` = `b`.`y`",
	})
	c.Assert(utf8.ValidString(q.Fragments(ClauseJoin)[0]), IsTrue)
}

func (s *QuerySuite) TestJoinErrors(c *gc.C) {
	c.Assert(
		New(nil).Join("planets", "a = b", "SIDEWAYS").Err(),
		HasErrorKind,
		errors.KindValidation)
	c.Assert(
		New(nil).Join("planets", "", "LEFT").Err(),
		HasErrorKind,
		errors.KindValidation)
	c.Assert(New(nil).Join(" ", "", "").Err(), HasErrorKind, errors.KindValidation)

	q := New(nil).From("galaxies g")
	q.Join("stars s", "foo bar", "")
	c.Assert(q.Err(), HasErrorKind, errors.KindParse)
	c.Assert(q.Aliases(), gc.DeepEquals, []string{"g"})
	c.Assert(q.Fragments(ClauseJoin), gc.HasLen, 0)

	q = New(nil).Join("stars s", "s.id => 1", "")
	c.Assert(q.Err(), HasErrorKind, errors.KindParse)
}

func (s *QuerySuite) TestWhereJoinerPlacement(c *gc.C) {
	q := New(nil).
		Where(F("a", 1)).
		Where(F("b", 2)).
		OrWhere(F("c", 3)).
		OrWhere(Map("d", 4, "e", 5))
	c.Assert(q.Err(), gc.IsNil)
	c.Assert(q.Fragments(ClauseWhere), gc.DeepEquals, []string{
		"`a` = 1",
		"AND `b` = 2",
		"OR `c` = 3",
		"OR `d` = 4",
		"OR `e` = 5",
	})

	q = New(nil).OrWhere(F("a", 1)).Where(F("b", 2))
	c.Assert(q.Fragments(ClauseWhere), gc.DeepEquals, []string{"`a` = 1", "AND `b` = 2"})
}

func (s *QuerySuite) TestWhereMap(c *gc.C) {
	q := New(nil).Where(Map("type", "rocky", "diameter <", 12000))
	c.Assert(q.Fragments(ClauseWhere), gc.DeepEquals, []string{
		"`type` = 'rocky'",
		"AND `diameter` < 12000",
	})
}

func (s *QuerySuite) TestWhereCondition(c *gc.C) {
	q := New(nil).
		Where(Condition("diameter < 12000 OR type = 'rocky'")).
		OrWhere(Condition("a = 1 AND b = 2"))
	c.Assert(q.Err(), gc.IsNil)
	c.Assert(q.Fragments(ClauseWhere), gc.DeepEquals, []string{
		"`diameter` < 12000",
		"OR `type` = 'rocky'",
		"OR `a` = 1",
		"AND `b` = 2",
	})

	q = New(nil).Where(F("x", 1))
	q.Where(Condition("x = 1 AND y ~ 2"))
	c.Assert(q.Err(), HasErrorKind, errors.KindParse)
	c.Assert(q.Fragments(ClauseWhere), gc.DeepEquals, []string{"`x` = 1"})
}

func (s *QuerySuite) TestWhereNull(c *gc.C) {
	q := New(nil).
		Where(F("deleted_at", nil)).
		Where(F("archived_at !=", nil)).
		Where(F("moon IS NOT NULL", nil))
	c.Assert(q.Fragments(ClauseWhere), gc.DeepEquals, []string{
		"`deleted_at` IS NULL",
		"AND `archived_at` IS NOT NULL",
		"AND `moon` IS NOT NULL",
	})

	c.Assert(
		New(nil).Where(F("x <", nil)).Err(),
		HasErrorKind,
		errors.KindValidation)
	c.Assert(
		New(nil).Where(F("x IS NULL", 1)).Err(),
		HasErrorKind,
		errors.KindValidation)
}

func (s *QuerySuite) TestWhereLists(c *gc.C) {
	q := New(nil).
		Where(F("id", []int{1, 2, 3})).
		Where(F("name !=", []string{"pluto"})).
		WhereIn("position", []int64{4, 5}).
		OrWhereNotIn("type", []string{"gas", "ice"}).
		Where(F("galaxy_id IN", Raw("(SELECT id FROM galaxies)")))
	c.Assert(q.Err(), gc.IsNil)
	c.Assert(q.Fragments(ClauseWhere), gc.DeepEquals, []string{
		"`id` IN (1, 2, 3)",
		"AND `name` NOT IN ('pluto')",
		"AND `position` IN (4, 5)",
		"OR `type` NOT IN ('gas', 'ice')",
		"AND `galaxy_id` IN (SELECT id FROM galaxies)",
	})

	c.Assert(
		New(nil).Where(F("id", []int{})).Err(),
		HasErrorKind,
		errors.KindValidation)
	c.Assert(
		New(nil).WhereNotIn("id", 5).Err(),
		HasErrorKind,
		errors.KindValidation)
	c.Assert(
		New(nil).Where(F("id <", []int{1})).Err(),
		HasErrorKind,
		errors.KindValidation)
	c.Assert(
		New(nil).Where(F("id IN", 1)).Err(),
		HasErrorKind,
		errors.KindValidation)
}

func (s *QuerySuite) TestWhereValues(c *gc.C) {
	type planetName string

	q := New(nil).
		Where(F("name", planetName("Mars"))).
		Where(F("rocky", true)).
		Where(F("ratio >", 0.5)).
		Where(F("seen", time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC))).
		Where(F("note", "it's"))
	c.Assert(q.Err(), gc.IsNil)
	c.Assert(q.Fragments(ClauseWhere), gc.DeepEquals, []string{
		"`name` = 'Mars'",
		"AND `rocky` = 1",
		"AND `ratio` > 0.5",
		"AND `seen` = '2020-01-02 03:04:05'",
		"AND `note` = 'it\\'s'",
	})

	c.Assert(
		New(nil).Where(F("ratio", math.NaN())).Err(),
		HasErrorKind,
		errors.KindValidation)
	c.Assert(
		New(nil).Where(F("ratio", math.Inf(-1))).Err(),
		HasErrorKind,
		errors.KindValidation)
	c.Assert(
		New(nil).Where(F("", 1)).Err(),
		HasErrorKind,
		errors.KindValidation)
	c.Assert(
		New(nil).Where(FieldMap{}).Err(),
		HasErrorKind,
		errors.KindValidation)
	c.Assert(
		New(nil).Where(nil).Err(),
		HasErrorKind,
		errors.KindValidation)
}

func (s *QuerySuite) TestLike(c *gc.C) {
	q := New(nil).
		Like(F("name", "mar"), SideBoth).
		OrLike(F("name", "ven"), SideBefore).
		NotLike(F("name", "plu"), SideAfter).
		OrNotLike(Map("code", 42), SideNone)
	c.Assert(q.Err(), gc.IsNil)
	c.Assert(q.Fragments(ClauseWhere), gc.DeepEquals, []string{
		"`name` LIKE '%mar%'",
		"OR `name` LIKE '%ven'",
		"AND `name` NOT LIKE 'plu%'",
		"OR `code` NOT LIKE '42'",
	})

	c.Assert(
		New(nil).Like(Condition("a = 1"), SideBoth).Err(),
		HasErrorKind,
		errors.KindValidation)
	c.Assert(
		New(nil).Like(F("a", "x"), Side(9)).Err(),
		HasErrorKind,
		errors.KindValidation)
	c.Assert(
		New(nil).Like(F("a", nil), SideBoth).Err(),
		HasErrorKind,
		errors.KindValidation)
}

func (s *QuerySuite) TestParseSide(c *gc.C) {
	side, err := ParseSide("Before")
	c.Assert(err, gc.IsNil)
	c.Assert(side, gc.Equals, SideBefore)

	side, err = ParseSide("")
	c.Assert(err, gc.IsNil)
	c.Assert(side, gc.Equals, SideBoth)

	_, err = ParseSide("middle")
	c.Assert(err, HasErrorKind, errors.KindValidation)
}

func (s *QuerySuite) TestHaving(c *gc.C) {
	q := New(nil).
		GroupBy("type, galaxy_id").
		Having(F("COUNT(*) >", 3)).
		OrHaving(Condition("AVG(diameter) < 1000"))
	c.Assert(q.Err(), gc.IsNil)
	c.Assert(
		q.Fragments(ClauseGroupBy),
		gc.DeepEquals,
		[]string{"`type`", "`galaxy_id`"})
	c.Assert(q.Fragments(ClauseHaving), gc.DeepEquals, []string{
		"COUNT(*) > 3",
		"OR AVG(diameter) < 1000",
	})
}

func (s *QuerySuite) TestOrderBy(c *gc.C) {
	q := New(nil).OrderBy("planet_position desc, planet_size asc")
	c.Assert(
		q.Fragments(ClauseOrderBy),
		gc.DeepEquals,
		[]string{"`planet_position` DESC", "`planet_size` ASC"})

	q = New(nil).OrderByDirection("desc", "a, b asc").OrderBy("c")
	c.Assert(
		q.Fragments(ClauseOrderBy),
		gc.DeepEquals,
		[]string{"`a` DESC", "`b` ASC", "`c` ASC"})

	c.Assert(
		New(nil).OrderByDirection("sideways", "a").Err(),
		HasErrorKind,
		errors.KindValidation)
	c.Assert(New(nil).OrderBy().Err(), HasErrorKind, errors.KindValidation)
}

func (s *QuerySuite) TestRandomOrder(c *gc.C) {
	q := New(nil).OrderBy("name").OrderBy("rand()")
	c.Assert(q.Fragments(ClauseOrderBy), gc.DeepEquals, []string{"RAND()"})

	q = New(nil).OrderBy("random, name")
	c.Assert(q.Fragments(ClauseOrderBy), gc.DeepEquals, []string{"RAND()"})

	q = New(NewPostgresDialect()).OrderBy("RAND")
	c.Assert(q.Fragments(ClauseOrderBy), gc.DeepEquals, []string{"RANDOM()"})

	q = New(NewSQLiteDialect()).OrderByDirection("random", "ignored")
	c.Assert(q.Fragments(ClauseOrderBy), gc.DeepEquals, []string{"RANDOM()"})
}

func (s *QuerySuite) TestLimitOffset(c *gc.C) {
	q := New(nil).Limit(5)
	c.Assert(q.Err(), gc.IsNil)
	n, ok := q.LimitValue()
	c.Assert(ok, IsTrue)
	c.Assert(n, gc.Equals, int64(5))
	_, ok = q.OffsetValue()
	c.Assert(ok, IsFalse)

	q = New(nil).Limit("5")
	c.Assert(q.Err(), gc.IsNil)
	n, _ = q.LimitValue()
	c.Assert(n, gc.Equals, int64(5))

	q = New(nil).Limit(uint8(10), "20").Limit(7)
	c.Assert(q.Err(), gc.IsNil)
	n, _ = q.LimitValue()
	c.Assert(n, gc.Equals, int64(7))
	n, ok = q.OffsetValue()
	c.Assert(ok, IsTrue)
	c.Assert(n, gc.Equals, int64(20))

	q = New(nil).Offset(0)
	n, ok = q.OffsetValue()
	c.Assert(ok, IsTrue)
	c.Assert(n, gc.Equals, int64(0))
}

func (s *QuerySuite) TestLimitRejects(c *gc.C) {
	bad := []interface{}{
		5.7,
		float32(1),
		-1,
		int64(-20),
		math.NaN(),
		math.Inf(1),
		true,
		[]int{},
		"5a",
		"-5",
		"",
		" 5 ",
		"5\n",
		"\t5",
		nil,
		uint64(math.MaxUint64),
		"99999999999999999999",
	}
	for _, v := range bad {
		q := New(nil)
		q.Limit(v)
		c.Assert(q.Err(), HasErrorKind, errors.KindValidation, gc.Commentf("%#v", v))
		_, ok := q.LimitValue()
		c.Assert(ok, IsFalse)

		q = New(nil)
		q.Offset(v)
		c.Assert(q.Err(), HasErrorKind, errors.KindValidation, gc.Commentf("%#v", v))
	}

	q := New(nil).Limit(1, 2, 3)
	c.Assert(q.Err(), HasErrorKind, errors.KindValidation)

	q = New(nil).Limit(10, -1)
	c.Assert(q.Err(), HasErrorKind, errors.KindValidation)
	_, ok := q.LimitValue()
	c.Assert(ok, IsFalse)
}

func (s *QuerySuite) TestSetLastWriteWins(c *gc.C) {
	q := New(nil).
		Set(F("name", "a")).
		Set(F("size", 1)).
		Set(F("name", "b")).
		Set(F("`size`", 2))
	c.Assert(q.Err(), gc.IsNil)
	c.Assert(q.Assignments(), gc.DeepEquals, []string{"`name` = 'b'", "`size` = 2"})
}

func (s *QuerySuite) TestSetValues(c *gc.C) {
	q := New(nil).
		Set(Map(
			"name", "Mars",
			"visited", false,
			"moons", uint(2),
			"mass", 0.107,
			"ring", nil,
			"seen", time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC))).
		SetRaw("visits", "visits + 1")
	c.Assert(q.Err(), gc.IsNil)
	c.Assert(q.Assignments(), gc.DeepEquals, []string{
		"`name` = 'Mars'",
		"`visited` = 0",
		"`moons` = 2",
		"`mass` = 0.107",
		"`ring` = NULL",
		"`seen` = '2020-01-02 03:04:05'",
		"`visits` = visits + 1",
	})
}

func (s *QuerySuite) TestSetRejects(c *gc.C) {
	bad := []Key{
		F("ratio", math.NaN()),
		F("ratio", math.Inf(1)),
		F("ids", []int{1}),
		F("blob", []byte("x")),
		F("", 1),
		F("thing", struct{}{}),
		Condition("a = 1"),
		FieldMap{},
	}
	for _, key := range bad {
		q := New(nil).Set(F("kept", 1))
		q.Set(key)
		c.Assert(q.Err(), HasErrorKind, errors.KindValidation, gc.Commentf("%#v", key))
		c.Assert(q.Assignments(), gc.DeepEquals, []string{"`kept` = 1"})
	}

	// A failing entry in a map leaves earlier entries of the same map unset.
	q := New(nil).Set(Map("a", 1, "b", math.NaN()))
	c.Assert(q.Err(), HasErrorKind, errors.KindValidation)
	c.Assert(q.Assignments(), gc.HasLen, 0)
}

func (s *QuerySuite) TestStickyError(c *gc.C) {
	q := New(nil).Select("a").From("t")
	q.Limit(-1)
	q.Select("b").Where(F("c", 1))

	c.Assert(q.Err(), HasErrorKind, errors.KindValidation)
	c.Assert(q.Fragments(ClauseSelect), gc.DeepEquals, []string{"`a`"})
	c.Assert(q.Fragments(ClauseWhere), gc.HasLen, 0)
	_, ok := q.LimitValue()
	c.Assert(ok, IsFalse)

	_, err := q.CompileSelect()
	c.Assert(err, HasErrorKind, errors.KindValidation)
	c.Assert(q.LastQuery(), gc.Equals, "")

	q.Reset()
	c.Assert(q.Err(), gc.IsNil)
	sql, err := q.Get("t")
	c.Assert(err, gc.IsNil)
	c.Assert(sql, gc.Equals, "SELECT * FROM `t`")
}

func (s *QuerySuite) TestCopy(c *gc.C) {
	q := New(nil).Select("a").From("t u").Limit(1).Set(F("x", 1))
	cp := q.Copy()
	cp.Select("b").Where(F("y", 2)).Set(F("z", 3)).Limit(9).From("v w")

	c.Assert(q.Fragments(ClauseSelect), gc.DeepEquals, []string{"`a`"})
	c.Assert(q.Fragments(ClauseWhere), gc.HasLen, 0)
	c.Assert(q.Assignments(), gc.DeepEquals, []string{"`x` = 1"})
	c.Assert(q.Aliases(), gc.DeepEquals, []string{"u"})
	n, _ := q.LimitValue()
	c.Assert(n, gc.Equals, int64(1))

	c.Assert(cp.Fragments(ClauseSelect), gc.DeepEquals, []string{"`a`", "`b`"})
	c.Assert(cp.Aliases(), gc.DeepEquals, []string{"u", "w"})
	n, _ = cp.LimitValue()
	c.Assert(n, gc.Equals, int64(9))
}

func (s *QuerySuite) TestReset(c *gc.C) {
	q := New(nil).Select("a").From("t u").Distinct().Limit(1, 2)
	sql, err := q.CompileSelect()
	c.Assert(err, gc.IsNil)
	c.Assert(sql, gc.Equals, "SELECT DISTINCT `a` FROM `t` `u` LIMIT 1 OFFSET 2")

	q.Reset()
	c.Assert(q.LastQuery(), gc.Equals, sql)
	c.Assert(q.Fragments(ClauseSelect), gc.HasLen, 0)
	c.Assert(q.Fragments(ClauseFrom), gc.HasLen, 0)
	c.Assert(q.Aliases(), gc.HasLen, 0)
	_, ok := q.LimitValue()
	c.Assert(ok, IsFalse)

	sql, err = q.Get("t")
	c.Assert(err, gc.IsNil)
	c.Assert(sql, gc.Equals, "SELECT * FROM `t`")

	q.ResetQuery("seed")
	c.Assert(q.LastQuery(), gc.Equals, "seed")
}

func (s *QuerySuite) TestBuilderAfterCompile(c *gc.C) {
	q := New(nil).From("t")
	_, err := q.CompileSelect()
	c.Assert(err, gc.IsNil)

	q.Where(F("a", 1))
	c.Assert(q.Err(), HasErrorKind, errors.KindState)
	c.Assert(q.Fragments(ClauseWhere), gc.HasLen, 0)
}

func (s *QuerySuite) TestMapPanics(c *gc.C) {
	c.Assert(func() { Map("a") }, gc.PanicMatches, "Map requires name / value pairs.*")
	c.Assert(func() { Map(1, 2) }, gc.PanicMatches, "Map field name at position 0.*")

	m := Map("a", 1, "a", 2)
	v, ok := m.Get("a")
	c.Assert(ok, IsTrue)
	c.Assert(v, gc.Equals, 2)
}
