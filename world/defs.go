package world

// ActorDef holds the fixed stats of a champion or minion type. Attack timings
// are offsets from the attack start, in seconds.
type ActorDef struct {
	TypeID          uint16
	Name            string
	MoveSpeed       float64
	AttackRange     float64
	AttackTime      float64
	PreHit          float64
	PostHit         float64
	Reload          float64
	ProjectileSpeed float64
	Damage          int32
	MaxHealth       int32
}

type Champions map[int16]ActorDef

func DefaultChampions() Champions {
	return Champions{
		1: {
			TypeID:          1,
			Name:            "ranger",
			MoveSpeed:       3.5,
			AttackRange:     6,
			AttackTime:      1.0,
			PreHit:          0.35,
			PostHit:         0.55,
			Reload:          0.85,
			ProjectileSpeed: 15,
			Damage:          60,
			MaxHealth:       600,
		},
		2: {
			TypeID:          2,
			Name:            "brute",
			MoveSpeed:       3.2,
			AttackRange:     2,
			AttackTime:      1.2,
			PreHit:          0.3,
			PostHit:         0.45,
			Reload:          0.9,
			ProjectileSpeed: 30,
			Damage:          90,
			MaxHealth:       900,
		},
		3: {
			TypeID:          3,
			Name:            "scout",
			MoveSpeed:       4.2,
			AttackRange:     4.5,
			AttackTime:      0.8,
			PreHit:          0.2,
			PostHit:         0.35,
			Reload:          0.6,
			ProjectileSpeed: 20,
			Damage:          40,
			MaxHealth:       480,
		},
	}
}

func DefaultMinion() ActorDef {
	return ActorDef{
		TypeID:          100,
		Name:            "minion",
		MoveSpeed:       3,
		AttackRange:     2.5,
		AttackTime:      1.25,
		PreHit:          0.3,
		PostHit:         0.5,
		Reload:          1.0,
		ProjectileSpeed: 18,
		Damage:          20,
		MaxHealth:       300,
	}
}

// Rules are the tunables of a match.
type Rules struct {
	TickDelta      float64
	MaxCommandAge  float64
	RepathInterval float64
	FirstWave      float64
	WaveInterval   float64
	// WaveSize of zero disables minion waves.
	WaveSize   int
	AggroRange float64
	Minion     ActorDef
}

func DefaultRules() Rules {
	return Rules{
		TickDelta:      0.05,
		MaxCommandAge:  1.0,
		RepathInterval: 0.25,
		FirstWave:      10,
		WaveInterval:   30,
		WaveSize:       3,
		AggroRange:     7,
		Minion:         DefaultMinion(),
	}
}
