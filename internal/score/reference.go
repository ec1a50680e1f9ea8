package score

import "github.com/cellardex/cellarid/internal/model"

// producerProfile describes what a recognized producer plausibly bottles.
type producerProfile struct {
	categories   []model.Category
	firstVintage int
}

// knownProducers returns the built-in reference of recognizable producers and
// flagship labels, keyed by Normalize()d name. Not exhaustive; the point is
// a high-precision allowlist for the combination check, not coverage.
func knownProducers() map[string]producerProfile {
	red := []model.Category{model.CategoryRed}
	white := []model.Category{model.CategoryWhite}
	sparkling := []model.Category{model.CategorySparkling}

	return map[string]producerProfile{
		// Bordeaux
		"chateau margaux":           {categories: red, firstVintage: 1900},
		"chateau latour":            {categories: red, firstVintage: 1900},
		"chateau lafite rothschild": {categories: red, firstVintage: 1900},
		"chateau mouton rothschild": {categories: red, firstVintage: 1924},
		"chateau haut-brion":        {categories: red, firstVintage: 1900},
		"chateau petrus":            {categories: red, firstVintage: 1900},
		"petrus":                    {categories: red, firstVintage: 1900},
		"chateau d'yquem":           {categories: []model.Category{model.CategoryDessert, model.CategoryWhite}, firstVintage: 1900},
		"chateau cheval blanc":      {categories: red, firstVintage: 1900},

		// Burgundy
		"domaine de la romanee-conti": {categories: red, firstVintage: 1900},
		"domaine leroy":               {categories: red, firstVintage: 1955},
		"domaine leflaive":            {categories: white, firstVintage: 1920},

		// Rhône
		"e. guigal":     {categories: red, firstVintage: 1946},
		"chateau rayas": {categories: red, firstVintage: 1920},
		"chapoutier":    {categories: red, firstVintage: 1900},

		// Champagne
		"krug":           {categories: sparkling, firstVintage: 1900},
		"dom perignon":   {categories: sparkling, firstVintage: 1921},
		"louis roederer": {categories: sparkling, firstVintage: 1900},
		"cristal":        {categories: sparkling, firstVintage: 1900},
		"bollinger":      {categories: sparkling, firstVintage: 1900},
		"salon":          {categories: sparkling, firstVintage: 1905},

		// Italy
		"gaja":             {categories: red, firstVintage: 1900},
		"sassicaia":        {categories: red, firstVintage: 1968},
		"tenuta san guido": {categories: red, firstVintage: 1968},
		"ornellaia":        {categories: red, firstVintage: 1985},
		"giacomo conterno": {categories: red, firstVintage: 1920},
		"bruno giacosa":    {categories: red, firstVintage: 1961},
		"antinori":         {categories: red, firstVintage: 1900},
		"tignanello":       {categories: red, firstVintage: 1971},

		// Spain
		"vega sicilia":    {categories: red, firstVintage: 1900},
		"unico":           {categories: red, firstVintage: 1900},
		"la rioja alta":   {categories: red, firstVintage: 1900},
		"alvaro palacios": {categories: red, firstVintage: 1989},

		// Germany
		"egon muller":    {categories: []model.Category{model.CategoryWhite, model.CategoryDessert}, firstVintage: 1900},
		"joh. jos. prum": {categories: white, firstVintage: 1911},
		"donnhoff":       {categories: white, firstVintage: 1971},

		// United States
		"screaming eagle":   {categories: red, firstVintage: 1992},
		"opus one":          {categories: red, firstVintage: 1979},
		"opus one winery":   {categories: red, firstVintage: 1979},
		"harlan estate":     {categories: red, firstVintage: 1990},
		"ridge vineyards":   {categories: red, firstVintage: 1962},
		"ridge monte bello": {categories: red, firstVintage: 1962},
		"kistler":           {categories: white, firstVintage: 1979},

		// Australia
		"penfolds":        {categories: red, firstVintage: 1900},
		"penfolds grange": {categories: red, firstVintage: 1951},
		"henschke":        {categories: red, firstVintage: 1900},

		// Portugal
		"taylor fladgate": {categories: []model.Category{model.CategoryFortified}, firstVintage: 1900},
		"quinta do noval": {categories: []model.Category{model.CategoryFortified}, firstVintage: 1900},
		"grahams":         {categories: []model.Category{model.CategoryFortified}, firstVintage: 1900},
	}
}
