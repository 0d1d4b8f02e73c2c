package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/graphql-go/graphql"

	"github.com/trailsafe/kumawatch/internal/core/domain"
)

// buildSchema creates the GraphQL schema wired to our services.
func buildSchema(deps *Dependencies) (graphql.Schema, error) {
	coordinateType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Coordinate",
		Fields: graphql.Fields{
			"lat": &graphql.Field{Type: graphql.Float},
			"lon": &graphql.Field{Type: graphql.Float},
		},
	})

	sightingType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Sighting",
		Fields: graphql.Fields{
			"id":          &graphql.Field{Type: graphql.String},
			"source":      &graphql.Field{Type: graphql.String},
			"location":    &graphql.Field{Type: coordinateType},
			"observed_at": &graphql.Field{Type: graphql.DateTime},
			"description": &graphql.Field{Type: graphql.String},
			"place":       &graphql.Field{Type: graphql.String},
		},
	})

	sourceCountType := graphql.NewObject(graphql.ObjectConfig{
		Name: "SourceCount",
		Fields: graphql.Fields{
			"source": &graphql.Field{Type: graphql.String},
			"count":  &graphql.Field{Type: graphql.Int},
		},
	})

	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"sightings": &graphql.Field{
				Type:        graphql.NewList(sightingType),
				Description: "Sightings inside a bounding box, newest first",
				Args: graphql.FieldConfigArgument{
					"min_lat": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
					"min_lon": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
					"max_lat": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
					"max_lon": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
					"source":  &graphql.ArgumentConfig{Type: graphql.String, DefaultValue: ""},
					"limit":   &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 100},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					bounds := domain.Bounds{
						MinLat: p.Args["min_lat"].(float64),
						MinLon: p.Args["min_lon"].(float64),
						MaxLat: p.Args["max_lat"].(float64),
						MaxLon: p.Args["max_lon"].(float64),
					}
					source := p.Args["source"].(string)
					limit := p.Args["limit"].(int)
					sightings, _, err := deps.Sightings.ListInBounds(p.Context, bounds, source, limit, 0)
					return sightings, err
				},
			},
			"sourceCounts": &graphql.Field{
				Type:        graphql.NewList(sourceCountType),
				Description: "Record counts per source tag",
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					counts, err := deps.Sightings.SourceCounts(p.Context)
					if err != nil {
						return nil, err
					}
					var result []map[string]interface{}
					for source, n := range counts {
						result = append(result, map[string]interface{}{
							"source": source,
							"count":  n,
						})
					}
					return result, nil
				},
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{
		Query: queryType,
	})
}

// GraphQLHandler serves the GraphQL endpoint.
func GraphQLHandler(deps *Dependencies) fiber.Handler {
	schema, err := buildSchema(deps)
	if err != nil {
		// This would be a programming error in the schema definition
		panic("graphql schema build: " + err.Error())
	}

	type gqlRequest struct {
		Query         string                 `json:"query"`
		OperationName string                 `json:"operationName"`
		Variables     map[string]interface{} `json:"variables"`
	}

	return func(c *fiber.Ctx) error {
		var req gqlRequest
		if err := c.BodyParser(&req); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "invalid request body"})
		}

		result := graphql.Do(graphql.Params{
			Schema:         schema,
			RequestString:  req.Query,
			VariableValues: req.Variables,
			OperationName:  req.OperationName,
			Context:        c.Context(),
		})

		return c.JSON(result)
	}
}
